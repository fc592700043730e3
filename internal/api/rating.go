package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/onetalk/support-chat/internal/matching"
	"github.com/onetalk/support-chat/internal/rating"
)

// RatingRequest is the body of POST /v1/sessions/:session_id/rating.
type RatingRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// PrepareRating checks the caller may rate the session. Listeners get 403
// with the dashboard route.
func (h *Handler) PrepareRating(c echo.Context) error {
	sess, err := h.deps.Ratings.Prepare(c.Request().Context(), participant(c), c.Param("session_id"))
	if err != nil {
		return ratingError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// SubmitRating stores the seeker's score and sends them to the dashboard.
func (h *Handler) SubmitRating(c echo.Context) error {
	var req RatingRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	sessionID := c.Param("session_id")
	if _, err := h.deps.Ratings.Prepare(ctx, participant(c), sessionID); err != nil {
		return ratingError(c, err)
	}
	if err := h.deps.Ratings.Submit(ctx, sessionID, req.Rating, req.Comment); err != nil {
		return ratingError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"route": matching.RouteDashboard})
}

func ratingError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, rating.ErrInvalidSession):
		return errJSON(c, http.StatusNotFound, "invalid session")
	case errors.Is(err, rating.ErrNotRater):
		return c.JSON(http.StatusForbidden, map[string]string{"error": err.Error(), "route": matching.RouteDashboard})
	case errors.Is(err, rating.ErrNoRating), errors.Is(err, rating.ErrOutOfRange):
		return errJSON(c, http.StatusBadRequest, err.Error())
	}
	return errJSON(c, http.StatusInternalServerError, "failed to submit rating")
}
