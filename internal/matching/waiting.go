package matching

import (
	"context"
	"errors"
	"fmt"

	"github.com/onetalk/support-chat/internal/backend"
	"github.com/onetalk/support-chat/internal/domain"
)

var (
	ErrInvalidSession = errors.New("matching: invalid session")
	ErrSessionClosed  = errors.New("matching: session closed before a listener joined")
)

// WaitBackend is what WaitingRoom needs from the backend.
type WaitBackend interface {
	Session(ctx context.Context, id string) (*domain.Session, error)
	SubscribeSession(sessionID string, fn func(domain.SessionChange)) (backend.Subscription, error)
}

// WaitingRoom blocks a seeker until a listener claims their session.
type WaitingRoom struct {
	gw WaitBackend
}

// NewWaitingRoom creates a WaitingRoom.
func NewWaitingRoom(gw WaitBackend) *WaitingRoom {
	return &WaitingRoom{gw: gw}
}

// Wait returns the chat route once the session becomes active. It returns
// ErrSessionClosed if the session ends first, or ctx's error.
func (w *WaitingRoom) Wait(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrInvalidSession
	}

	statuses := make(chan domain.Status, 8)
	sub, err := w.gw.SubscribeSession(sessionID, func(ch domain.SessionChange) {
		if ch.New == nil {
			return
		}
		select {
		case statuses <- ch.New.Status:
		default:
		}
	})
	if err != nil {
		return "", fmt.Errorf("matching: wait: %w", err)
	}
	defer sub.Unsubscribe()

	// The claim may have landed before the subscription was in place.
	s, err := w.gw.Session(ctx, sessionID)
	if errors.Is(err, backend.ErrNotFound) {
		return "", ErrInvalidSession
	}
	if err != nil {
		return "", fmt.Errorf("matching: wait: %w", err)
	}
	if route, done, err := waitOutcome(sessionID, s.Status); done {
		return route, err
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case status := <-statuses:
			if route, done, err := waitOutcome(sessionID, status); done {
				return route, err
			}
		}
	}
}

func waitOutcome(sessionID string, status domain.Status) (string, bool, error) {
	switch {
	case status == domain.StatusActive:
		return SessionRoute(sessionID), true, nil
	case status.Terminal():
		return RouteDashboard, true, ErrSessionClosed
	}
	return "", false, nil
}
