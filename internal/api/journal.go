package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/onetalk/support-chat/internal/domain"
	"github.com/onetalk/support-chat/internal/journal"
)

// JournalRequest is the body of POST /v1/journal.
type JournalRequest struct {
	Mood  string `json:"mood"`
	Notes string `json:"notes"`
}

// ListJournal returns the caller's mood entries, newest first.
func (h *Handler) ListJournal(c echo.Context) error {
	entries, err := h.deps.Journal.Entries(c.Request().Context(), currentProfile(c).ID)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "could not load journal entries")
	}
	if entries == nil {
		entries = []domain.MoodEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

// AddJournalEntry records an entry and returns the updated list.
func (h *Handler) AddJournalEntry(c echo.Context) error {
	var req JournalRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	id := currentProfile(c).ID
	entries, err := h.deps.Journal.Entries(ctx, id)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "could not load journal entries")
	}
	entries, err = h.deps.Journal.Add(ctx, id, req.Mood, req.Notes, entries)
	switch {
	case errors.Is(err, journal.ErrUnknownMood), errors.Is(err, journal.ErrEmptyNotes):
		return errJSON(c, http.StatusBadRequest, err.Error())
	case err != nil:
		return errJSON(c, http.StatusInternalServerError, "could not save journal entry")
	}
	return c.JSON(http.StatusCreated, entries)
}
