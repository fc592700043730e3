package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ListHistory returns the caller's completed sessions, newest first.
func (h *Handler) ListHistory(c echo.Context) error {
	entries, err := h.deps.History.Completed(c.Request().Context(), participant(c))
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "failed to load history")
	}
	return c.JSON(http.StatusOK, entries)
}
