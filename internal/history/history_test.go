package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onetalk/support-chat/internal/backend/memory"
	"github.com/onetalk/support-chat/internal/domain"
)

func seed(t *testing.T) (*memory.Gateway, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	gw := memory.New(clock)
	gw.AddProfile(domain.Profile{ID: "p-seeker", Nickname: "Sparrow"})
	gw.AddProfile(domain.Profile{ID: "p-owl", Nickname: "Owl"})
	gw.AddProfile(domain.Profile{ID: "p-wren", Nickname: "Wren"})
	gw.AddTopic(domain.Topic{ID: "t-work", Name: "Work", IsActive: true})

	now := clock.Now()
	rows := []domain.Session{
		{ID: "old", SeekerID: "p-seeker", ListenerID: "p-owl", TopicID: "t-work", Status: domain.StatusCompleted, DurationMinutes: 30, ExtendedDurationMinutes: 30, CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "new", SeekerID: "p-seeker", ListenerID: "p-wren", Status: domain.StatusCompleted, DurationMinutes: 30, CreatedAt: now.Add(-time.Hour)},
		{ID: "live", SeekerID: "p-seeker", ListenerID: "p-owl", Status: domain.StatusActive, DurationMinutes: 30, CreatedAt: now},
		{ID: "dropped", SeekerID: "p-seeker", Status: domain.StatusCancelled, DurationMinutes: 30, CreatedAt: now},
		{ID: "other", SeekerID: "p-wren", ListenerID: "p-owl", Status: domain.StatusCompleted, DurationMinutes: 30, CreatedAt: now},
	}
	for i := range rows {
		require.NoError(t, gw.InsertSession(context.Background(), &rows[i]))
	}
	return gw, clock
}

func TestCompletedNewestFirst(t *testing.T) {
	gw, _ := seed(t)
	svc := NewService(gw, gw)

	entries, err := svc.Completed(context.Background(), domain.Participant{ProfileID: "p-seeker"})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "new", entries[0].SessionID)
	assert.Equal(t, "Wren", entries[0].Partner)
	assert.Empty(t, entries[0].Topic)

	assert.Equal(t, "old", entries[1].SessionID)
	assert.Equal(t, "Owl", entries[1].Partner)
	assert.Equal(t, "Work", entries[1].Topic)
	assert.Equal(t, 60, entries[1].DurationMinutes)
	assert.True(t, entries[1].WasSeeker)
}

func TestCompletedForListener(t *testing.T) {
	gw, _ := seed(t)
	svc := NewService(gw, gw)

	entries, err := svc.Completed(context.Background(), domain.Participant{ProfileID: "p-owl"})
	require.NoError(t, err)

	var partners []string
	for _, e := range entries {
		assert.False(t, e.WasSeeker)
		partners = append(partners, e.Partner)
	}
	assert.Equal(t, []string{"Wren", "Sparrow"}, partners)
}

func TestCompletedEmpty(t *testing.T) {
	gw := memory.New(nil)
	entries, err := NewService(gw, gw).Completed(context.Background(), domain.Participant{ProfileID: "p-new"})
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestCompletedBackendError(t *testing.T) {
	gw, _ := seed(t)
	gw.Fail(memory.OpSessionsForProfile, errors.New("read failed"))

	_, err := NewService(gw, gw).Completed(context.Background(), domain.Participant{ProfileID: "p-seeker"})
	assert.Error(t, err)
}
