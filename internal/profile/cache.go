// Package profile caches pseudonymous profiles in Redis and owns the
// nickname rename rules.
package profile

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onetalk/support-chat/internal/domain"
)

const (
	// CachePrefix is the Redis key prefix for cached profile hashes.
	CachePrefix = "profile:"

	// DefaultCacheTTL is how long a cached profile lives.
	DefaultCacheTTL = 10 * time.Minute
)

// Source loads a profile from the backend.
type Source interface {
	Profile(ctx context.Context, id string) (*domain.Profile, error)
}

// Cache is a read-through profile cache. A Redis failure falls back to the
// source so a cache outage never hides a profile.
type Cache struct {
	client redis.Cmdable
	source Source
	ttl    time.Duration
}

// NewCache creates a Cache in front of source.
func NewCache(client redis.Cmdable, source Source, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{client: client, source: source, ttl: ttl}
}

// Profile returns the cached profile or loads and caches it.
func (c *Cache) Profile(ctx context.Context, id string) (*domain.Profile, error) {
	key := CachePrefix + id

	var p domain.Profile
	if err := c.client.HGetAll(ctx, key).Scan(&p); err != nil {
		log.Printf("[profile] redis HGETALL key=%s: %v (reading through)", key, err)
	} else if p.ID != "" {
		return &p, nil
	}

	loaded, err := c.source.Profile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("profile: load %s: %w", id, err)
	}
	if err := c.store(ctx, loaded); err != nil {
		log.Printf("[profile] cache store key=%s: %v", key, err)
	}
	return loaded, nil
}

func (c *Cache) store(ctx context.Context, p *domain.Profile) error {
	key := CachePrefix + p.ID
	fields := map[string]interface{}{
		"id":              p.ID,
		"user_id":         p.UserID,
		"nickname":        p.Nickname,
		"bio":             p.Bio,
		"role":            string(p.Role),
		"rating_average":  p.RatingAverage,
		"rating_count":    p.RatingCount,
		"total_sessions":  p.TotalSessions,
		"is_available":    p.IsAvailable,
		"listener_status": string(p.ListenerStatus),
	}

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Invalidate drops the cached copy of a profile.
func (c *Cache) Invalidate(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, CachePrefix+id).Err(); err != nil {
		return fmt.Errorf("profile: invalidate %s: %w", id, err)
	}
	return nil
}
