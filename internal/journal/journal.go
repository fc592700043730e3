// Package journal is the private mood journal.
package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/onetalk/support-chat/internal/domain"
)

// Mood is one selectable mood and its score.
type Mood struct {
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
	Score int    `json:"score"`
}

// Moods is the catalog, best first.
var Moods = []Mood{
	{Name: "happy", Emoji: "😄", Score: 5},
	{Name: "good", Emoji: "🙂", Score: 4},
	{Name: "neutral", Emoji: "😐", Score: 3},
	{Name: "sad", Emoji: "😔", Score: 2},
	{Name: "awful", Emoji: "😭", Score: 1},
}

var (
	ErrUnknownMood = errors.New("journal: please select a mood")
	ErrEmptyNotes  = errors.New("journal: please write a note")
)

// LookupMood finds a catalog mood by name.
func LookupMood(name string) (Mood, bool) {
	for _, m := range Moods {
		if m.Name == name {
			return m, true
		}
	}
	return Mood{}, false
}

// Backend is what Service needs from the backend.
type Backend interface {
	MoodEntries(ctx context.Context, profileID string) ([]domain.MoodEntry, error)
	InsertMoodEntry(ctx context.Context, e *domain.MoodEntry) error
}

type Service struct {
	gw Backend
}

func NewService(gw Backend) *Service {
	return &Service{gw: gw}
}

// Entries returns a profile's entries, newest first.
func (s *Service) Entries(ctx context.Context, profileID string) ([]domain.MoodEntry, error) {
	entries, err := s.gw.MoodEntries(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("journal: entries: %w", err)
	}
	return entries, nil
}

// Add records an entry and returns the list with it prepended. entries is
// the caller's current list and is not modified.
func (s *Service) Add(ctx context.Context, profileID, mood, notes string, entries []domain.MoodEntry) ([]domain.MoodEntry, error) {
	m, ok := LookupMood(mood)
	if !ok {
		return entries, ErrUnknownMood
	}
	if strings.TrimSpace(notes) == "" {
		return entries, ErrEmptyNotes
	}

	e := &domain.MoodEntry{
		ProfileID: profileID,
		Mood:      m.Name,
		MoodScore: m.Score,
		Notes:     notes,
		Emotions:  []string{},
	}
	if err := s.gw.InsertMoodEntry(ctx, e); err != nil {
		return entries, fmt.Errorf("journal: add: %w", err)
	}

	out := make([]domain.MoodEntry, 0, len(entries)+1)
	out = append(out, *e)
	return append(out, entries...), nil
}
