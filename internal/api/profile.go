package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/onetalk/support-chat/internal/matching"
	"github.com/onetalk/support-chat/internal/profile"
)

// RenameRequest is the body of PATCH /v1/profile.
type RenameRequest struct {
	Nickname string `json:"nickname"`
}

// RenameProfile changes the caller's nickname.
func (h *Handler) RenameProfile(c echo.Context) error {
	var req RenameRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	id := currentProfile(c).ID
	if h.deps.Rename != nil {
		if ok, _ := h.deps.Rename.Allow(ctx, id); !ok {
			return errJSON(c, http.StatusTooManyRequests, "too many nickname changes")
		}
	}

	p, err := h.deps.Profile.Rename(ctx, id, req.Nickname)
	switch {
	case errors.Is(err, profile.ErrNicknameLength):
		return errJSON(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, profile.ErrNicknameTaken):
		return errJSON(c, http.StatusConflict, err.Error())
	case err != nil:
		return errJSON(c, http.StatusInternalServerError, "failed to update profile")
	}
	return c.JSON(http.StatusOK, p)
}

// BecomeListener verifies the caller as a listener once they accept the
// guidelines and points them at the queue.
func (h *Handler) BecomeListener(c echo.Context) error {
	p, err := h.deps.Profile.BecomeListener(c.Request().Context(), currentProfile(c).ID)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "could not complete the process")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"profile": p, "route": matching.RouteQueue})
}

// GetListener returns a public profile by nickname.
func (h *Handler) GetListener(c echo.Context) error {
	nickname, err := url.PathUnescape(c.Param("nickname"))
	if err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid nickname")
	}
	p, err := h.deps.Profile.Lookup(c.Request().Context(), nickname)
	switch {
	case errors.Is(err, profile.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error(), "route": matching.RouteDashboard})
	case err != nil:
		return errJSON(c, http.StatusInternalServerError, "failed to load profile")
	}
	return c.JSON(http.StatusOK, p)
}
