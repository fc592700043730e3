package matching

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onetalk/support-chat/internal/backend/memory"
	"github.com/onetalk/support-chat/internal/domain"
)

func insertWaiting(t *testing.T, gw *memory.Gateway) *domain.Session {
	t.Helper()
	s := &domain.Session{SeekerID: seeker.ProfileID, TopicID: "t1", DurationMinutes: domain.DefaultDurationMinutes}
	require.NoError(t, gw.InsertSession(context.Background(), s))
	return s
}

func TestWaitReturnsWhenClaimed(t *testing.T) {
	gw := memory.New(nil)
	s := insertWaiting(t, gw)

	type result struct {
		route string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		route, err := NewWaitingRoom(gw).Wait(context.Background(), s.ID)
		done <- result{route, err}
	}()

	// Give the waiter a moment to subscribe; Wait also rechecks the row.
	time.Sleep(20 * time.Millisecond)
	won, err := gw.ClaimSession(context.Background(), s.ID, "p-listener")
	require.NoError(t, err)
	require.True(t, won)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, SessionRoute(s.ID), r.route)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after claim")
	}
}

func TestWaitAlreadyActive(t *testing.T) {
	gw := memory.New(nil)
	s := insertWaiting(t, gw)
	gw.ClaimSession(context.Background(), s.ID, "p-listener")

	route, err := NewWaitingRoom(gw).Wait(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionRoute(s.ID), route)
}

func TestWaitSessionCancelled(t *testing.T) {
	gw := memory.New(nil)
	s := insertWaiting(t, gw)

	go func() {
		time.Sleep(20 * time.Millisecond)
		gw.UpdateSessionStatus(context.Background(), s.ID, domain.StatusCancelled)
	}()

	route, err := NewWaitingRoom(gw).Wait(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Equal(t, RouteDashboard, route)
}

func TestWaitContextCancelled(t *testing.T) {
	gw := memory.New(nil)
	s := insertWaiting(t, gw)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := NewWaitingRoom(gw).Wait(ctx, s.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitInvalidSession(t *testing.T) {
	gw := memory.New(nil)
	room := NewWaitingRoom(gw)

	_, err := room.Wait(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = room.Wait(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrInvalidSession)
}
