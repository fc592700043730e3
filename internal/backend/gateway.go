// Package backend describes the hosted backend the client talks to. The
// backend owns persistence, authentication, realtime fan-out and every
// race-sensitive operation; this package only names the three capability
// groups the client consumes (rows, realtime feeds, remote procedures) so
// that adapters can be swapped.
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/onetalk/support-chat/internal/domain"
)

// ErrNotFound is returned by row reads that match nothing.
var ErrNotFound = errors.New("backend: not found")

// Rows is row read/write/insert on the backend's tables.
type Rows interface {
	Session(ctx context.Context, id string) (*domain.Session, error)
	InsertSession(ctx context.Context, s *domain.Session) error
	UpdateSessionStatus(ctx context.Context, id string, status domain.Status) error
	// WaitingSessions returns sessions still waiting for a listener that were
	// created after since, oldest first.
	WaitingSessions(ctx context.Context, since time.Time) ([]domain.Session, error)
	SessionsForProfile(ctx context.Context, profileID string) ([]domain.Session, error)

	// Messages returns a session's messages ordered by creation time with
	// the sender nickname joined in.
	Messages(ctx context.Context, sessionID string) ([]domain.Message, error)
	InsertMessage(ctx context.Context, m *domain.Message) error

	Profile(ctx context.Context, id string) (*domain.Profile, error)
	ProfileByNickname(ctx context.Context, nickname string) (*domain.Profile, error)
	UpdateProfile(ctx context.Context, p *domain.Profile) error

	InsertTransaction(ctx context.Context, t *domain.Transaction) error

	Topics(ctx context.Context) ([]domain.Topic, error)
	MoodEntries(ctx context.Context, profileID string) ([]domain.MoodEntry, error)
	InsertMoodEntry(ctx context.Context, e *domain.MoodEntry) error
}

// Procedures are named remote procedures executed server-side.
type Procedures interface {
	ServerTime(ctx context.Context) (time.Time, error)
	// ClaimSession atomically assigns a waiting session to a listener. A
	// false result means another listener won the race; it is not an error.
	ClaimSession(ctx context.Context, sessionID, listenerID string) (bool, error)
	ExtendSession(ctx context.Context, sessionID string, minutes int) error
	SubmitRating(ctx context.Context, sessionID string, rating int, comment string) error
}

// Subscription is a live realtime subscription. Unsubscribe must be called
// when the owning scope ends; it is safe to call more than once.
type Subscription interface {
	Unsubscribe() error
}

// Realtime delivers change feeds and the per-session broadcast channel.
// Events on one feed arrive in emission order; nothing is guaranteed across
// feeds.
type Realtime interface {
	SubscribeMessages(sessionID string, fn func(domain.Message)) (Subscription, error)
	SubscribeSession(sessionID string, fn func(domain.SessionChange)) (Subscription, error)
	SubscribeWaiting(fn func(domain.SessionChange)) (Subscription, error)
	SubscribeBroadcast(sessionID string, fn func(domain.Broadcast)) (Subscription, error)
	Broadcast(ctx context.Context, sessionID string, b domain.Broadcast) error
}

// ChangePublisher is implemented by realtime adapters that can fan out row
// changes produced by a storage adapter.
type ChangePublisher interface {
	PublishMessage(m domain.Message) error
	PublishSessionChange(c domain.SessionChange) error
}

// Store is a storage adapter: rows plus procedures.
type Store interface {
	Rows
	Procedures
}

// Gateway is the full backend surface.
type Gateway interface {
	Rows
	Procedures
	Realtime
}

type composed struct {
	Store
	Realtime
}

// Compose joins a storage adapter and a realtime adapter into one Gateway.
func Compose(store Store, rt Realtime) Gateway {
	return composed{Store: store, Realtime: rt}
}

// SubscriptionFunc adapts a function to the Subscription interface.
type SubscriptionFunc func() error

// Unsubscribe calls f.
func (f SubscriptionFunc) Unsubscribe() error { return f() }
