package matching

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/onetalk/support-chat/internal/domain"
)

// ListenerKind is who the seeker wants to talk to.
type ListenerKind string

const (
	KindAI       ListenerKind = "ai"
	KindListener ListenerKind = "listener"
)

var (
	ErrTopicRequired   = errors.New("matching: please select a topic")
	ErrUnknownKind     = errors.New("matching: unknown listener kind")
	ErrTooManyRequests = errors.New("matching: too many session requests")
)

// StartRequest is the seeker's choice on the start screen.
type StartRequest struct {
	Kind        ListenerKind `json:"kind"`
	TopicID     string       `json:"topic_id"`
	Description string       `json:"description"`
}

// StartResult tells the client where to go next. Session is nil for AI chats.
type StartResult struct {
	Route   string          `json:"route"`
	Session *domain.Session `json:"session,omitempty"`
}

// StartBackend is what Starter needs from the backend.
type StartBackend interface {
	InsertSession(ctx context.Context, s *domain.Session) error
	Topics(ctx context.Context) ([]domain.Topic, error)
}

// Limiter throttles an action per profile.
type Limiter interface {
	Allow(ctx context.Context, profileID string) (bool, error)
}

// Starter creates waiting sessions.
type Starter struct {
	gw      StartBackend
	limiter Limiter
}

// NewStarter creates a Starter. limiter may be nil.
func NewStarter(gw StartBackend, limiter Limiter) *Starter {
	return &Starter{gw: gw, limiter: limiter}
}

// Topics returns the active topics ordered by name.
func (s *Starter) Topics(ctx context.Context) ([]domain.Topic, error) {
	topics, err := s.gw.Topics(ctx)
	if err != nil {
		return nil, fmt.Errorf("matching: topics: %w", err)
	}
	return topics, nil
}

// Start handles the seeker's request. AI chats never touch the backend;
// human chats insert a waiting session with the default duration.
func (s *Starter) Start(ctx context.Context, seeker domain.Participant, req StartRequest) (StartResult, error) {
	switch req.Kind {
	case KindAI:
		return StartResult{Route: RouteAIChat}, nil
	case KindListener:
	default:
		return StartResult{}, ErrUnknownKind
	}

	if req.TopicID == "" {
		return StartResult{}, ErrTopicRequired
	}
	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, seeker.ProfileID)
		if err != nil {
			log.Printf("[matching] start limiter: %v", err)
		}
		if !ok {
			return StartResult{}, ErrTooManyRequests
		}
	}

	sess := &domain.Session{
		SeekerID:        seeker.ProfileID,
		TopicID:         req.TopicID,
		Description:     strings.TrimSpace(req.Description),
		DurationMinutes: domain.DefaultDurationMinutes,
		Status:          domain.StatusWaiting,
	}
	if err := s.gw.InsertSession(ctx, sess); err != nil {
		return StartResult{}, fmt.Errorf("matching: start: %w", err)
	}

	log.Printf("[matching] seeker=%s waiting in session=%s topic=%s", seeker.ProfileID, sess.ID, sess.TopicID)
	return StartResult{Route: WaitingRoute(sess.ID), Session: sess}, nil
}
