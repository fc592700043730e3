package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/onetalk/support-chat/internal/domain"
	"github.com/onetalk/support-chat/internal/matching"
)

// ListTopics returns the active topics.
func (h *Handler) ListTopics(c echo.Context) error {
	topics, err := h.deps.Starter.Topics(c.Request().Context())
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "failed to load topics")
	}
	return c.JSON(http.StatusOK, topics)
}

// StartSession starts an AI chat or requests a listener.
func (h *Handler) StartSession(c echo.Context) error {
	var req matching.StartRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid request body")
	}

	res, err := h.deps.Starter.Start(c.Request().Context(), participant(c), req)
	switch {
	case errors.Is(err, matching.ErrTopicRequired), errors.Is(err, matching.ErrUnknownKind):
		return errJSON(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, matching.ErrTooManyRequests):
		return errJSON(c, http.StatusTooManyRequests, err.Error())
	case err != nil:
		return errJSON(c, http.StatusInternalServerError, "failed to start session")
	}

	if res.Session == nil {
		return c.JSON(http.StatusOK, res)
	}
	return c.JSON(http.StatusCreated, res)
}

// WaitSession long-polls until a listener claims the session.
func (h *Handler) WaitSession(c echo.Context) error {
	route, err := h.deps.Waiting.Wait(c.Request().Context(), c.Param("session_id"))
	switch {
	case errors.Is(err, matching.ErrInvalidSession):
		return errJSON(c, http.StatusNotFound, "session not found")
	case errors.Is(err, matching.ErrSessionClosed):
		return c.JSON(http.StatusGone, map[string]string{"error": err.Error(), "route": route})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return c.NoContent(http.StatusRequestTimeout)
	case err != nil:
		return errJSON(c, http.StatusInternalServerError, "failed to wait for session")
	}
	return c.JSON(http.StatusOK, map[string]string{"route": route})
}

// ListQueue returns the waiting sessions a verified listener can claim.
func (h *Handler) ListQueue(c echo.Context) error {
	q, err := matching.NewQueue(h.deps.Gateway, h.deps.Clock, currentProfile(c))
	if err != nil {
		return notVerified(c, err)
	}
	sessions, err := q.Load(c.Request().Context())
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "failed to load queue")
	}
	return c.JSON(http.StatusOK, sessions)
}

// ClaimSession lets a verified listener take a waiting session. Losing the
// race is a normal response with outcome "lost".
func (h *Handler) ClaimSession(c echo.Context) error {
	q, err := matching.NewQueue(h.deps.Gateway, h.deps.Clock, currentProfile(c))
	if err != nil {
		return notVerified(c, err)
	}
	res, err := q.Claim(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "failed to claim session")
	}
	return c.JSON(http.StatusOK, res)
}

// StreamQueue pushes the live queue as server-sent events: the current view
// first, then a new view after every change to the waiting feed.
func (h *Handler) StreamQueue(c echo.Context) error {
	q, err := matching.NewQueue(h.deps.Gateway, h.deps.Clock, currentProfile(c))
	if err != nil {
		return notVerified(c, err)
	}

	// Holds the latest view only; a slow client skips intermediate ones.
	views := make(chan []domain.Session, 1)
	push := func(v []domain.Session) {
		select {
		case <-views:
		default:
		}
		select {
		case views <- v:
		default:
		}
	}

	ctx := c.Request().Context()
	if err := q.Watch(push); err != nil {
		return errJSON(c, http.StatusInternalServerError, "failed to watch queue")
	}
	defer q.Close()
	initial, err := q.Load(ctx)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "failed to load queue")
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)

	write := func(v []domain.Session) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(res, "event: queue\ndata: %s\n\n", b); err != nil {
			return err
		}
		res.Flush()
		return nil
	}

	if err := write(initial); err != nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case v := <-views:
			if err := write(v); err != nil {
				return nil
			}
		}
	}
}

func notVerified(c echo.Context, err error) error {
	return c.JSON(http.StatusForbidden, map[string]string{"error": err.Error(), "route": matching.RouteOnboard})
}
