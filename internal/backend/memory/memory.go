// Package memory is an in-process backend gateway. It keeps every table in
// maps behind one mutex, resolves the remote procedures under that mutex and
// fans changes out to subscribers through per-subscription queues, so it
// behaves like the hosted backend from a client's point of view. Tests and
// local demos run against it.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/onetalk/support-chat/internal/backend"
	"github.com/onetalk/support-chat/internal/domain"
)

// Operation names accepted by Fail and Calls.
const (
	OpServerTime          = "ServerTime"
	OpSession             = "Session"
	OpInsertSession       = "InsertSession"
	OpUpdateSessionStatus = "UpdateSessionStatus"
	OpSessionsForProfile  = "SessionsForProfile"
	OpMessages            = "Messages"
	OpInsertMessage       = "InsertMessage"
	OpProfile             = "Profile"
	OpUpdateProfile       = "UpdateProfile"
	OpInsertTransaction   = "InsertTransaction"
	OpClaimSession        = "ClaimSession"
	OpExtendSession       = "ExtendSession"
	OpSubmitRating        = "SubmitRating"
	OpBroadcast           = "Broadcast"
	OpInsertMoodEntry     = "InsertMoodEntry"
)

// Gateway implements backend.Gateway in memory.
type Gateway struct {
	clock clockwork.Clock

	mu           sync.Mutex
	sessions     map[string]*domain.Session
	messages     map[string][]domain.Message // session ID -> ordered messages
	profiles     map[string]*domain.Profile
	topics       []domain.Topic
	transactions []domain.Transaction
	ratings      []domain.Rating
	moods        []domain.MoodEntry
	failures     map[string]error
	calls        map[string]int

	hub *hub
}

var _ backend.Gateway = (*Gateway)(nil)

// New creates an empty gateway. A nil clock uses the real clock.
func New(clock clockwork.Clock) *Gateway {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Gateway{
		clock:    clock,
		sessions: make(map[string]*domain.Session),
		messages: make(map[string][]domain.Message),
		profiles: make(map[string]*domain.Profile),
		failures: make(map[string]error),
		calls:    make(map[string]int),
		hub:      newHub(),
	}
}

// Fail makes every later call of op return err. A nil err clears it.
func (g *Gateway) Fail(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failures, op)
		return
	}
	g.failures[op] = err
}

// Calls returns how many times op has been invoked.
func (g *Gateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// AddProfile seeds a profile.
func (g *Gateway) AddProfile(p domain.Profile) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.profiles[p.ID] = &p
}

// AddTopic seeds a topic.
func (g *Gateway) AddTopic(t domain.Topic) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.topics = append(g.topics, t)
}

// Transactions returns the transactions recorded for a session.
func (g *Gateway) Transactions(sessionID string) []domain.Transaction {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []domain.Transaction
	for _, t := range g.transactions {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	return out
}

// Ratings returns every stored rating.
func (g *Gateway) Ratings() []domain.Rating {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.Rating(nil), g.ratings...)
}

// begin records a call and returns the injected failure for op, if any.
// Callers hold g.mu.
func (g *Gateway) begin(op string) error {
	g.calls[op]++
	return g.failures[op]
}

// ---------------------------------------------------------------------------
// Procedures
// ---------------------------------------------------------------------------

func (g *Gateway) ServerTime(ctx context.Context) (time.Time, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpServerTime); err != nil {
		return time.Time{}, err
	}
	return g.clock.Now(), nil
}

func (g *Gateway) ClaimSession(ctx context.Context, sessionID, listenerID string) (bool, error) {
	g.mu.Lock()
	if err := g.begin(OpClaimSession); err != nil {
		g.mu.Unlock()
		return false, err
	}
	s, ok := g.sessions[sessionID]
	if !ok || s.Status != domain.StatusWaiting {
		g.mu.Unlock()
		return false, nil
	}
	old := *s
	s.ListenerID = listenerID
	s.Status = domain.StatusActive
	change := domain.SessionChange{Kind: domain.ChangeUpdate, New: cloneSession(s), Old: &old}
	g.mu.Unlock()

	g.publishSession(change)
	return true, nil
}

func (g *Gateway) ExtendSession(ctx context.Context, sessionID string, minutes int) error {
	g.mu.Lock()
	if err := g.begin(OpExtendSession); err != nil {
		g.mu.Unlock()
		return err
	}
	s, ok := g.sessions[sessionID]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("memory: extend session %s: %w", sessionID, backend.ErrNotFound)
	}
	if s.Status != domain.StatusActive {
		g.mu.Unlock()
		return fmt.Errorf("memory: extend session %s: status is %s", sessionID, s.Status)
	}
	if minutes <= 0 {
		g.mu.Unlock()
		return fmt.Errorf("memory: extend session %s: invalid minutes %d", sessionID, minutes)
	}
	old := *s
	s.ExtendedDurationMinutes += minutes
	change := domain.SessionChange{Kind: domain.ChangeUpdate, New: cloneSession(s), Old: &old}
	g.mu.Unlock()

	g.publishSession(change)
	return nil
}

func (g *Gateway) SubmitRating(ctx context.Context, sessionID string, rating int, comment string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpSubmitRating); err != nil {
		return err
	}
	s, ok := g.sessions[sessionID]
	if !ok {
		return fmt.Errorf("memory: submit rating %s: %w", sessionID, backend.ErrNotFound)
	}
	if rating < 1 || rating > 5 {
		return fmt.Errorf("memory: submit rating %s: rating %d out of range", sessionID, rating)
	}
	for _, r := range g.ratings {
		if r.SessionID == sessionID {
			return fmt.Errorf("memory: submit rating %s: already rated", sessionID)
		}
	}
	g.ratings = append(g.ratings, domain.Rating{
		SessionID: sessionID,
		RaterID:   s.SeekerID,
		RatedID:   s.ListenerID,
		Rating:    rating,
		Feedback:  comment,
		CreatedAt: g.clock.Now(),
	})
	if p, ok := g.profiles[s.ListenerID]; ok {
		total := p.RatingAverage*float64(p.RatingCount) + float64(rating)
		p.RatingCount++
		p.RatingAverage = total / float64(p.RatingCount)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Rows: sessions
// ---------------------------------------------------------------------------

func (g *Gateway) Session(ctx context.Context, id string) (*domain.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpSession); err != nil {
		return nil, err
	}
	s, ok := g.sessions[id]
	if !ok {
		return nil, backend.ErrNotFound
	}
	return cloneSession(s), nil
}

func (g *Gateway) InsertSession(ctx context.Context, s *domain.Session) error {
	g.mu.Lock()
	if err := g.begin(OpInsertSession); err != nil {
		g.mu.Unlock()
		return err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if _, exists := g.sessions[s.ID]; exists {
		g.mu.Unlock()
		return fmt.Errorf("memory: insert session %s: duplicate id", s.ID)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = g.clock.Now()
	}
	if s.Status == "" {
		s.Status = domain.StatusWaiting
	}
	g.sessions[s.ID] = cloneSession(s)
	change := domain.SessionChange{Kind: domain.ChangeInsert, New: cloneSession(s)}
	g.mu.Unlock()

	g.publishSession(change)
	return nil
}

func (g *Gateway) UpdateSessionStatus(ctx context.Context, id string, status domain.Status) error {
	g.mu.Lock()
	if err := g.begin(OpUpdateSessionStatus); err != nil {
		g.mu.Unlock()
		return err
	}
	s, ok := g.sessions[id]
	if !ok {
		g.mu.Unlock()
		return backend.ErrNotFound
	}
	old := *s
	s.Status = status
	change := domain.SessionChange{Kind: domain.ChangeUpdate, New: cloneSession(s), Old: &old}
	g.mu.Unlock()

	g.publishSession(change)
	return nil
}

func (g *Gateway) WaitingSessions(ctx context.Context, since time.Time) ([]domain.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []domain.Session
	for _, s := range g.sessions {
		if s.Status == domain.StatusWaiting && s.CreatedAt.After(since) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (g *Gateway) SessionsForProfile(ctx context.Context, profileID string) ([]domain.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpSessionsForProfile); err != nil {
		return nil, err
	}
	var out []domain.Session
	for _, s := range g.sessions {
		if s.IsParticipant(profileID) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ---------------------------------------------------------------------------
// Rows: messages
// ---------------------------------------------------------------------------

func (g *Gateway) Messages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpMessages); err != nil {
		return nil, err
	}
	msgs := g.messages[sessionID]
	out := make([]domain.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		if p, ok := g.profiles[m.SenderID]; ok {
			out[i].SenderNickname = p.Nickname
		}
	}
	return out, nil
}

func (g *Gateway) InsertMessage(ctx context.Context, m *domain.Message) error {
	g.mu.Lock()
	if err := g.begin(OpInsertMessage); err != nil {
		g.mu.Unlock()
		return err
	}
	if _, ok := g.sessions[m.SessionID]; !ok {
		g.mu.Unlock()
		return fmt.Errorf("memory: insert message: session %s: %w", m.SessionID, backend.ErrNotFound)
	}
	if strings.TrimSpace(m.Content) == "" {
		g.mu.Unlock()
		return fmt.Errorf("memory: insert message: empty content")
	}
	m.ID = uuid.NewString()
	m.CreatedAt = g.clock.Now()
	row := *m
	row.SenderNickname = ""
	g.messages[m.SessionID] = append(g.messages[m.SessionID], row)
	g.mu.Unlock()

	g.hub.publish(messagesTopic(row.SessionID), func(fn any) {
		fn.(func(domain.Message))(row)
	})
	return nil
}

// ---------------------------------------------------------------------------
// Rows: profiles, transactions, topics, journal
// ---------------------------------------------------------------------------

func (g *Gateway) Profile(ctx context.Context, id string) (*domain.Profile, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpProfile); err != nil {
		return nil, err
	}
	p, ok := g.profiles[id]
	if !ok {
		return nil, backend.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (g *Gateway) ProfileByNickname(ctx context.Context, nickname string) (*domain.Profile, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.profiles {
		if p.Nickname == nickname {
			cp := *p
			return &cp, nil
		}
	}
	return nil, backend.ErrNotFound
}

func (g *Gateway) UpdateProfile(ctx context.Context, p *domain.Profile) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpUpdateProfile); err != nil {
		return err
	}
	if _, ok := g.profiles[p.ID]; !ok {
		return backend.ErrNotFound
	}
	cp := *p
	g.profiles[p.ID] = &cp
	return nil
}

func (g *Gateway) InsertTransaction(ctx context.Context, t *domain.Transaction) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpInsertTransaction); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = g.clock.Now()
	g.transactions = append(g.transactions, *t)
	return nil
}

func (g *Gateway) Topics(ctx context.Context) ([]domain.Topic, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []domain.Topic
	for _, t := range g.topics {
		if t.IsActive {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (g *Gateway) MoodEntries(ctx context.Context, profileID string) ([]domain.MoodEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []domain.MoodEntry
	for i := len(g.moods) - 1; i >= 0; i-- {
		if g.moods[i].ProfileID == profileID {
			out = append(out, g.moods[i])
		}
	}
	return out, nil
}

func (g *Gateway) InsertMoodEntry(ctx context.Context, e *domain.MoodEntry) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpInsertMoodEntry); err != nil {
		return err
	}
	e.ID = uuid.NewString()
	e.CreatedAt = g.clock.Now()
	if e.Emotions == nil {
		e.Emotions = []string{}
	}
	g.moods = append(g.moods, *e)
	return nil
}

func cloneSession(s *domain.Session) *domain.Session {
	cp := *s
	return &cp
}
