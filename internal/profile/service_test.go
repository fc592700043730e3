package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onetalk/support-chat/internal/backend/memory"
	"github.com/onetalk/support-chat/internal/domain"
)

type invalidations struct{ ids []string }

func (i *invalidations) Invalidate(_ context.Context, id string) error {
	i.ids = append(i.ids, id)
	return nil
}

func newTestService(t *testing.T) (*Service, *memory.Gateway, *invalidations) {
	t.Helper()
	gw := memory.New(nil)
	gw.AddProfile(domain.Profile{ID: "p1", Nickname: "Sparrow"})
	gw.AddProfile(domain.Profile{ID: "p2", Nickname: "Owl"})
	inv := &invalidations{}
	return NewService(gw, inv), gw, inv
}

func TestRename(t *testing.T) {
	svc, gw, inv := newTestService(t)
	ctx := context.Background()

	p, err := svc.Rename(ctx, "p1", "  Kestrel ")
	require.NoError(t, err)
	assert.Equal(t, "Kestrel", p.Nickname)

	stored, err := gw.Profile(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Kestrel", stored.Nickname)
	assert.Equal(t, []string{"p1"}, inv.ids)
}

func TestRenameRejects(t *testing.T) {
	svc, gw, inv := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		nickname string
		want     error
	}{
		{"too short", "ab", ErrNicknameLength},
		{"too long", "abcdefghijklmnopqrstuvwxy", ErrNicknameLength},
		{"blank", "     ", ErrNicknameLength},
		{"taken", "Owl", ErrNicknameTaken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Rename(ctx, "p1", tt.nickname)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 0, gw.Calls(memory.OpUpdateProfile))
	assert.Empty(t, inv.ids)
}

func TestRenameKeepsOwnNickname(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Rename(context.Background(), "p2", "Owl")
	assert.NoError(t, err)
}

func TestRenameUpdateFailure(t *testing.T) {
	svc, gw, inv := newTestService(t)
	gw.Fail(memory.OpUpdateProfile, errors.New("write failed"))

	_, err := svc.Rename(context.Background(), "p1", "Kestrel")
	assert.Error(t, err)
	assert.Empty(t, inv.ids)
}

func TestBecomeListener(t *testing.T) {
	svc, gw, inv := newTestService(t)
	ctx := context.Background()

	p, err := svc.BecomeListener(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.ListenerVerified, p.ListenerStatus)

	stored, err := gw.Profile(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.ListenerVerified, stored.ListenerStatus)
	assert.Equal(t, "Sparrow", stored.Nickname)
	assert.Equal(t, []string{"p1"}, inv.ids)

	// Already verified: nothing to write.
	_, err = svc.BecomeListener(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, gw.Calls(memory.OpUpdateProfile))

	_, err = svc.BecomeListener(ctx, "missing")
	assert.Error(t, err)
}

func TestBecomeListenerUpdateFailure(t *testing.T) {
	svc, gw, inv := newTestService(t)
	gw.Fail(memory.OpUpdateProfile, errors.New("write failed"))

	_, err := svc.BecomeListener(context.Background(), "p2")
	assert.Error(t, err)
	assert.Empty(t, inv.ids)
}

func TestLookup(t *testing.T) {
	svc, gw, _ := newTestService(t)
	gw.AddProfile(domain.Profile{
		ID:             "p3",
		UserID:         "u3",
		Nickname:       "Heron",
		RatingAverage:  4.5,
		RatingCount:    2,
		TotalSessions:  7,
		ListenerStatus: domain.ListenerVerified,
	})
	ctx := context.Background()

	p, err := svc.Lookup(ctx, " Heron ")
	require.NoError(t, err)
	assert.Equal(t, "p3", p.ID)
	assert.Equal(t, 7, p.TotalSessions)
	assert.InDelta(t, 4.5, p.RatingAverage, 0.001)
	assert.Equal(t, domain.ListenerVerified, p.ListenerStatus)

	_, err = svc.Lookup(ctx, "Nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Lookup(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}
