package rating

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onetalk/support-chat/internal/backend/memory"
	"github.com/onetalk/support-chat/internal/domain"
)

func setup(t *testing.T) (*memory.Gateway, *domain.Session) {
	t.Helper()
	gw := memory.New(nil)
	gw.AddProfile(domain.Profile{ID: "p-listener", Nickname: "Owl", Role: domain.RoleListener})
	s := &domain.Session{
		SeekerID:        "p-seeker",
		ListenerID:      "p-listener",
		Status:          domain.StatusCompleted,
		DurationMinutes: domain.DefaultDurationMinutes,
	}
	require.NoError(t, gw.InsertSession(context.Background(), s))
	return gw, s
}

func TestPrepare(t *testing.T) {
	gw, s := setup(t)
	svc := NewService(gw, nil)
	ctx := context.Background()

	got, err := svc.Prepare(ctx, domain.Participant{ProfileID: "p-seeker"}, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	_, err = svc.Prepare(ctx, domain.Participant{ProfileID: "p-listener"}, s.ID)
	assert.ErrorIs(t, err, ErrNotRater)

	_, err = svc.Prepare(ctx, domain.Participant{ProfileID: "p-seeker"}, "missing")
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = svc.Prepare(ctx, domain.Participant{ProfileID: "p-seeker"}, "")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestSubmitValidation(t *testing.T) {
	gw, s := setup(t)
	svc := NewService(gw, nil)

	tests := []struct {
		name  string
		value int
		want  error
	}{
		{"no selection", 0, ErrNoRating},
		{"negative", -1, ErrOutOfRange},
		{"above five", 6, ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Submit(context.Background(), s.ID, tt.value, "")
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 0, gw.Calls(memory.OpSubmitRating))
}

func TestSubmitStoresRating(t *testing.T) {
	gw, s := setup(t)
	svc := NewService(gw, nil)

	require.NoError(t, svc.Submit(context.Background(), s.ID, 4, "  very kind  "))

	ratings := gw.Ratings()
	require.Len(t, ratings, 1)
	assert.Equal(t, 4, ratings[0].Rating)
	assert.Equal(t, "very kind", ratings[0].Feedback)
	assert.Equal(t, "p-seeker", ratings[0].RaterID)
	assert.Equal(t, "p-listener", ratings[0].RatedID)

	p, err := gw.Profile(context.Background(), "p-listener")
	require.NoError(t, err)
	assert.Equal(t, 1, p.RatingCount)
	assert.InDelta(t, 4.0, p.RatingAverage, 0.001)
}

func TestSubmitBackendError(t *testing.T) {
	gw, s := setup(t)
	gw.Fail(memory.OpSubmitRating, errors.New("rpc failed"))

	err := NewService(gw, nil).Submit(context.Background(), s.ID, 5, "")
	assert.Error(t, err)
	assert.Empty(t, gw.Ratings())
}

type invalidations struct{ ids []string }

func (i *invalidations) Invalidate(_ context.Context, id string) error {
	i.ids = append(i.ids, id)
	return nil
}

func TestSubmitInvalidatesListenerProfile(t *testing.T) {
	gw, s := setup(t)
	inv := &invalidations{}
	svc := NewService(gw, inv)

	require.NoError(t, svc.Submit(context.Background(), s.ID, 5, ""))
	assert.Equal(t, []string{"p-listener"}, inv.ids)

	gw.Fail(memory.OpSubmitRating, errors.New("rpc failed"))
	assert.Error(t, svc.Submit(context.Background(), s.ID, 5, ""))
	assert.Equal(t, []string{"p-listener"}, inv.ids, "a failed submit leaves the cache alone")
}
