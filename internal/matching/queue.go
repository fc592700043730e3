package matching

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/onetalk/support-chat/internal/backend"
	"github.com/onetalk/support-chat/internal/domain"
	"github.com/onetalk/support-chat/internal/metrics"
)

// QueueWindow bounds how old a waiting session may be to appear in the queue.
const QueueWindow = 10 * time.Minute

var ErrListenerNotVerified = errors.New("matching: listener is not verified")

// QueueBackend is what Queue needs from the backend.
type QueueBackend interface {
	Session(ctx context.Context, id string) (*domain.Session, error)
	WaitingSessions(ctx context.Context, since time.Time) ([]domain.Session, error)
	ClaimSession(ctx context.Context, sessionID, listenerID string) (bool, error)
	SubscribeWaiting(fn func(domain.SessionChange)) (backend.Subscription, error)
}

// ClaimOutcome is the result of a claim attempt.
type ClaimOutcome string

const (
	ClaimWon  ClaimOutcome = "won"
	ClaimLost ClaimOutcome = "lost"
)

// ClaimResult carries the outcome and, for a win, the chat route.
type ClaimResult struct {
	Outcome ClaimOutcome `json:"outcome"`
	Route   string       `json:"route,omitempty"`
}

// Queue is a verified listener's live view of waiting sessions.
type Queue struct {
	gw       QueueBackend
	clock    clockwork.Clock
	listener *domain.Profile
	timeout  time.Duration

	mu       sync.Mutex
	items    []domain.Session
	sub      backend.Subscription
	onChange func([]domain.Session)
}

// NewQueue opens the queue for listener. Only verified listeners may.
func NewQueue(gw QueueBackend, clock clockwork.Clock, listener *domain.Profile) (*Queue, error) {
	if listener == nil || listener.ListenerStatus != domain.ListenerVerified {
		return nil, ErrListenerNotVerified
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Queue{gw: gw, clock: clock, listener: listener, timeout: 10 * time.Second}, nil
}

// Load replaces the view with waiting sessions from the last ten minutes,
// oldest first.
func (q *Queue) Load(ctx context.Context) ([]domain.Session, error) {
	sessions, err := q.gw.WaitingSessions(ctx, q.clock.Now().Add(-QueueWindow))
	if err != nil {
		return nil, fmt.Errorf("matching: load queue: %w", err)
	}

	q.mu.Lock()
	q.items = sessions
	out := q.snapshotLocked()
	q.mu.Unlock()
	return out, nil
}

// Watch applies the waiting feed to the view: inserts are refetched and
// appended, updates and deletes remove the row. onChange, if set, receives
// the new view after every change. Call Close to stop.
func (q *Queue) Watch(onChange func([]domain.Session)) error {
	q.mu.Lock()
	q.onChange = onChange
	q.mu.Unlock()

	sub, err := q.gw.SubscribeWaiting(q.apply)
	if err != nil {
		return fmt.Errorf("matching: watch queue: %w", err)
	}

	q.mu.Lock()
	q.sub = sub
	q.mu.Unlock()
	return nil
}

func (q *Queue) apply(ch domain.SessionChange) {
	id := ch.SessionID()
	if id == "" {
		return
	}

	switch ch.Kind {
	case domain.ChangeInsert:
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		s, err := q.gw.Session(ctx, id)
		cancel()
		if err != nil {
			log.Printf("[matching] refetch waiting session %s: %v", id, err)
			return
		}
		if s.Status != domain.StatusWaiting {
			return
		}
		q.mu.Lock()
		if q.indexLocked(id) < 0 {
			q.items = append(q.items, *s)
		}
	case domain.ChangeUpdate, domain.ChangeDelete:
		q.mu.Lock()
		q.removeLocked(id)
	default:
		return
	}

	view := q.snapshotLocked()
	notify := q.onChange
	q.mu.Unlock()

	if notify != nil {
		notify(view)
	}
}

// Sessions returns the current view.
func (q *Queue) Sessions() []domain.Session {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// Claim tries to take a waiting session. Losing the race is a ClaimLost
// result, not an error, and drops the session from the view.
func (q *Queue) Claim(ctx context.Context, sessionID string) (ClaimResult, error) {
	won, err := q.gw.ClaimSession(ctx, sessionID, q.listener.ID)
	if err != nil {
		metrics.ClaimsTotal.WithLabelValues("error").Inc()
		return ClaimResult{}, fmt.Errorf("matching: claim %s: %w", sessionID, err)
	}

	q.mu.Lock()
	var waited time.Duration
	if i := q.indexLocked(sessionID); i >= 0 {
		waited = q.clock.Since(q.items[i].CreatedAt)
	}
	q.removeLocked(sessionID)
	q.mu.Unlock()

	if !won {
		metrics.ClaimsTotal.WithLabelValues(string(ClaimLost)).Inc()
		log.Printf("[matching] listener=%s lost claim on session=%s", q.listener.ID, sessionID)
		return ClaimResult{Outcome: ClaimLost}, nil
	}

	metrics.ClaimsTotal.WithLabelValues(string(ClaimWon)).Inc()
	if waited > 0 {
		metrics.WaitTime.Observe(waited.Seconds())
	}
	log.Printf("[matching] listener=%s claimed session=%s", q.listener.ID, sessionID)
	return ClaimResult{Outcome: ClaimWon, Route: SessionRoute(sessionID)}, nil
}

// Close stops watching the waiting feed.
func (q *Queue) Close() error {
	q.mu.Lock()
	sub := q.sub
	q.sub = nil
	q.mu.Unlock()
	if sub == nil {
		return nil
	}
	return sub.Unsubscribe()
}

func (q *Queue) indexLocked(id string) int {
	for i := range q.items {
		if q.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (q *Queue) removeLocked(id string) {
	if i := q.indexLocked(id); i >= 0 {
		q.items = append(q.items[:i], q.items[i+1:]...)
	}
}

func (q *Queue) snapshotLocked() []domain.Session {
	out := make([]domain.Session, len(q.items))
	copy(out, q.items)
	return out
}
