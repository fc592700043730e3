// Package rating lets a seeker score a finished session.
package rating

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/onetalk/support-chat/internal/backend"
	"github.com/onetalk/support-chat/internal/domain"
)

const (
	MinRating = 1
	MaxRating = 5
)

var (
	ErrInvalidSession = errors.New("rating: invalid session")
	ErrNotRater       = errors.New("rating: only the seeker rates a session")
	ErrNoRating       = errors.New("rating: please select a rating")
	ErrOutOfRange     = errors.New("rating: rating must be between 1 and 5")
)

// Backend is what Service needs from the backend.
type Backend interface {
	Session(ctx context.Context, id string) (*domain.Session, error)
	SubmitRating(ctx context.Context, sessionID string, rating int, comment string) error
}

// Invalidator drops a cached profile whose rating average changed.
type Invalidator interface {
	Invalidate(ctx context.Context, id string) error
}

type Service struct {
	gw    Backend
	cache Invalidator
}

// NewService creates a Service. cache may be nil.
func NewService(gw Backend, cache Invalidator) *Service {
	return &Service{gw: gw, cache: cache}
}

// Prepare loads the session to be rated. Listeners get ErrNotRater and
// should be thanked and sent back to the dashboard.
func (s *Service) Prepare(ctx context.Context, p domain.Participant, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, ErrInvalidSession
	}
	sess, err := s.gw.Session(ctx, sessionID)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("rating: prepare: %w", err)
	}
	if !sess.IsSeeker(p.ProfileID) {
		return nil, ErrNotRater
	}
	return sess, nil
}

// Submit stores the score through the backend's submit_rating procedure,
// which also updates the listener's average.
func (s *Service) Submit(ctx context.Context, sessionID string, value int, comment string) error {
	if value == 0 {
		return ErrNoRating
	}
	if value < MinRating || value > MaxRating {
		return ErrOutOfRange
	}
	if err := s.gw.SubmitRating(ctx, sessionID, value, strings.TrimSpace(comment)); err != nil {
		return fmt.Errorf("rating: submit: %w", err)
	}
	log.Printf("[rating] session=%s rated %d", sessionID, value)
	s.invalidateListener(ctx, sessionID)
	return nil
}

func (s *Service) invalidateListener(ctx context.Context, sessionID string) {
	if s.cache == nil {
		return
	}
	sess, err := s.gw.Session(ctx, sessionID)
	if err != nil {
		log.Printf("[rating] session=%s reload for cache: %v", sessionID, err)
		return
	}
	if sess.ListenerID == "" {
		return
	}
	if err := s.cache.Invalidate(ctx, sess.ListenerID); err != nil {
		log.Printf("[rating] %v", err)
	}
}
