package profile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/onetalk/support-chat/internal/backend"
	"github.com/onetalk/support-chat/internal/domain"
)

const (
	MinNicknameLen = 3
	MaxNicknameLen = 24
)

var (
	ErrNicknameLength = fmt.Errorf("profile: nickname must be %d to %d characters", MinNicknameLen, MaxNicknameLen)
	ErrNicknameTaken  = errors.New("profile: nickname already taken")
	ErrNotFound       = errors.New("profile: user not found")
)

// Rows is the subset of backend rows the service needs.
type Rows interface {
	Profile(ctx context.Context, id string) (*domain.Profile, error)
	ProfileByNickname(ctx context.Context, nickname string) (*domain.Profile, error)
	UpdateProfile(ctx context.Context, p *domain.Profile) error
}

// Invalidator drops cached profiles after a write.
type Invalidator interface {
	Invalidate(ctx context.Context, id string) error
}

// Service applies profile edits.
type Service struct {
	rows  Rows
	cache Invalidator
}

// NewService creates a Service. cache may be nil.
func NewService(rows Rows, cache Invalidator) *Service {
	return &Service{rows: rows, cache: cache}
}

// Rename changes a profile's public nickname.
func (s *Service) Rename(ctx context.Context, id, nickname string) (*domain.Profile, error) {
	nickname = strings.TrimSpace(nickname)
	if n := utf8.RuneCountInString(nickname); n < MinNicknameLen || n > MaxNicknameLen {
		return nil, ErrNicknameLength
	}

	existing, err := s.rows.ProfileByNickname(ctx, nickname)
	switch {
	case err == nil && existing.ID != id:
		return nil, ErrNicknameTaken
	case err != nil && !errors.Is(err, backend.ErrNotFound):
		return nil, fmt.Errorf("profile: rename: %w", err)
	}

	p, err := s.rows.Profile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("profile: rename: %w", err)
	}
	p.Nickname = nickname
	if err := s.rows.UpdateProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("profile: rename: %w", err)
	}

	s.invalidate(ctx, id)
	return p, nil
}

// BecomeListener records that the profile accepted the listener guidelines,
// which verifies it for the listener queue.
func (s *Service) BecomeListener(ctx context.Context, id string) (*domain.Profile, error) {
	p, err := s.rows.Profile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("profile: become listener: %w", err)
	}
	if p.ListenerStatus == domain.ListenerVerified {
		return p, nil
	}
	p.ListenerStatus = domain.ListenerVerified
	if err := s.rows.UpdateProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("profile: become listener: %w", err)
	}
	s.invalidate(ctx, id)
	log.Printf("[profile] profile=%s verified as listener", id)
	return p, nil
}

// Public is what anyone may see of a profile.
type Public struct {
	ID             string                `json:"id"`
	Nickname       string                `json:"nickname"`
	Bio            string                `json:"bio,omitempty"`
	RatingAverage  float64               `json:"rating_average"`
	RatingCount    int                   `json:"rating_count"`
	TotalSessions  int                   `json:"total_sessions"`
	ListenerStatus domain.ListenerStatus `json:"listener_status"`
}

// Lookup finds a public profile by nickname.
func (s *Service) Lookup(ctx context.Context, nickname string) (*Public, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, ErrNotFound
	}
	p, err := s.rows.ProfileByNickname(ctx, nickname)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profile: lookup %q: %w", nickname, err)
	}
	return &Public{
		ID:             p.ID,
		Nickname:       p.Nickname,
		Bio:            p.Bio,
		RatingAverage:  p.RatingAverage,
		RatingCount:    p.RatingCount,
		TotalSessions:  p.TotalSessions,
		ListenerStatus: p.ListenerStatus,
	}, nil
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		log.Printf("[profile] %v", err)
	}
}
