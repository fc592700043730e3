// Package history lists the sessions a participant has finished, newest
// first, with the topic and the other participant's nickname.
package history

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/onetalk/support-chat/internal/domain"
)

// Backend is what Service needs from the backend.
type Backend interface {
	SessionsForProfile(ctx context.Context, profileID string) ([]domain.Session, error)
	Topics(ctx context.Context) ([]domain.Topic, error)
}

// ProfileResolver looks up profiles, usually through the Redis cache.
type ProfileResolver interface {
	Profile(ctx context.Context, id string) (*domain.Profile, error)
}

// Entry is one finished session as the history page shows it.
type Entry struct {
	SessionID       string    `json:"session_id"`
	CreatedAt       time.Time `json:"created_at"`
	Topic           string    `json:"topic,omitempty"`
	Partner         string    `json:"partner,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
	WasSeeker       bool      `json:"was_seeker"`
}

type Service struct {
	gw       Backend
	profiles ProfileResolver
}

func NewService(gw Backend, profiles ProfileResolver) *Service {
	return &Service{gw: gw, profiles: profiles}
}

// Completed returns p's completed sessions, newest first. A topic or partner
// that cannot be resolved is left blank.
func (s *Service) Completed(ctx context.Context, p domain.Participant) ([]Entry, error) {
	sessions, err := s.gw.SessionsForProfile(ctx, p.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("history: sessions for %s: %w", p.ProfileID, err)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})

	topics := s.topicNames(ctx)
	nicknames := make(map[string]string)

	out := make([]Entry, 0, len(sessions))
	for i := range sessions {
		sess := &sessions[i]
		if sess.Status != domain.StatusCompleted {
			continue
		}
		out = append(out, Entry{
			SessionID:       sess.ID,
			CreatedAt:       sess.CreatedAt,
			Topic:           topics[sess.TopicID],
			Partner:         s.nickname(ctx, nicknames, sess.Counterpart(p.ProfileID)),
			DurationMinutes: sess.TotalMinutes(),
			WasSeeker:       sess.IsSeeker(p.ProfileID),
		})
	}
	return out, nil
}

func (s *Service) topicNames(ctx context.Context) map[string]string {
	names := make(map[string]string)
	topics, err := s.gw.Topics(ctx)
	if err != nil {
		log.Printf("[history] topics: %v", err)
		return names
	}
	for _, t := range topics {
		names[t.ID] = t.Name
	}
	return names
}

func (s *Service) nickname(ctx context.Context, seen map[string]string, id string) string {
	if id == "" {
		return ""
	}
	if name, ok := seen[id]; ok {
		return name
	}
	p, err := s.profiles.Profile(ctx, id)
	if err != nil {
		log.Printf("[history] profile %s: %v", id, err)
		seen[id] = ""
		return ""
	}
	seen[id] = p.Nickname
	return p.Nickname
}
