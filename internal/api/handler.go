// Package api serves the REST surface around a chat session: starting and
// waiting for a session, the listener queue, rating, history, the mood
// journal and profiles.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/onetalk/support-chat/internal/backend"
	"github.com/onetalk/support-chat/internal/domain"
	"github.com/onetalk/support-chat/internal/history"
	"github.com/onetalk/support-chat/internal/journal"
	"github.com/onetalk/support-chat/internal/matching"
	"github.com/onetalk/support-chat/internal/profile"
	"github.com/onetalk/support-chat/internal/rating"
)

// HeaderProfileID carries the signed-in participant's profile ID.
const HeaderProfileID = "X-Profile-ID"

const ctxProfile = "profile"

// ProfileResolver looks up profiles, usually through the Redis cache.
type ProfileResolver interface {
	Profile(ctx context.Context, id string) (*domain.Profile, error)
}

// Limiter throttles an action per profile.
type Limiter interface {
	Allow(ctx context.Context, profileID string) (bool, error)
}

// Deps are the services the handler serves.
type Deps struct {
	Gateway  backend.Gateway
	Profiles ProfileResolver
	Clock    clockwork.Clock
	Starter  *matching.Starter
	Waiting  *matching.WaitingRoom
	Ratings  *rating.Service
	History  *history.Service
	Journal  *journal.Service
	Profile  *profile.Service
	Rename   Limiter // optional
}

// Handler handles HTTP requests.
type Handler struct {
	deps Deps
}

// NewHandler creates a new handler.
func NewHandler(deps Deps) *Handler {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Profiles == nil {
		deps.Profiles = deps.Gateway
	}
	return &Handler{deps: deps}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	v1 := e.Group("/v1", h.Authenticate)
	v1.GET("/topics", h.ListTopics)
	v1.POST("/sessions", h.StartSession)
	v1.GET("/sessions/:session_id/wait", h.WaitSession)
	v1.GET("/sessions/history", h.ListHistory)
	v1.GET("/queue", h.ListQueue)
	v1.GET("/queue/stream", h.StreamQueue)
	v1.POST("/sessions/:session_id/claim", h.ClaimSession)
	v1.GET("/sessions/:session_id/rating", h.PrepareRating)
	v1.POST("/sessions/:session_id/rating", h.SubmitRating)
	v1.GET("/journal", h.ListJournal)
	v1.POST("/journal", h.AddJournalEntry)
	v1.PATCH("/profile", h.RenameProfile)
	v1.POST("/profile/listener", h.BecomeListener)
	v1.GET("/listeners/:nickname", h.GetListener)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// Authenticate resolves the X-Profile-ID header to a profile.
func (h *Handler) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(HeaderProfileID)
		if id == "" {
			return errJSON(c, http.StatusUnauthorized, "missing profile")
		}
		p, err := h.deps.Profiles.Profile(c.Request().Context(), id)
		if errors.Is(err, backend.ErrNotFound) {
			return errJSON(c, http.StatusUnauthorized, "unknown profile")
		}
		if err != nil {
			return errJSON(c, http.StatusInternalServerError, "failed to load profile")
		}
		c.Set(ctxProfile, p)
		return next(c)
	}
}

func currentProfile(c echo.Context) *domain.Profile {
	p, _ := c.Get(ctxProfile).(*domain.Profile)
	return p
}

func participant(c echo.Context) domain.Participant {
	p := currentProfile(c)
	return domain.Participant{ProfileID: p.ID, Nickname: p.Nickname}
}

func errJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}
