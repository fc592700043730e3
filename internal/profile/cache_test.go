package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onetalk/support-chat/internal/backend"
	"github.com/onetalk/support-chat/internal/backend/memory"
	"github.com/onetalk/support-chat/internal/domain"
)

// newTestCache creates a Cache connected to a local Redis instance.
// Requires Redis on localhost:6379; tests are skipped if unavailable.
func newTestCache(t *testing.T) (*Cache, *memory.Gateway, *redis.Client) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 13})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	client.FlushDB(ctx)
	t.Cleanup(func() {
		client.FlushDB(ctx)
		client.Close()
	})

	gw := memory.New(nil)
	gw.AddProfile(domain.Profile{
		ID:             "p1",
		Nickname:       "Owl",
		Role:           domain.RoleListener,
		RatingAverage:  4.5,
		RatingCount:    2,
		IsAvailable:    true,
		ListenerStatus: domain.ListenerVerified,
	})
	return NewCache(client, gw, time.Minute), gw, client
}

func TestCacheReadThrough(t *testing.T) {
	cache, gw, client := newTestCache(t)
	ctx := context.Background()

	p, err := cache.Profile(ctx, "p1")
	if err != nil {
		t.Fatalf("Profile() error: %v", err)
	}
	if p.Nickname != "Owl" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if ttl := client.TTL(ctx, CachePrefix+"p1").Val(); ttl <= 0 {
		t.Errorf("cached key has no TTL: %v", ttl)
	}

	again, err := cache.Profile(ctx, "p1")
	if err != nil {
		t.Fatalf("second Profile() error: %v", err)
	}
	if gw.Calls(memory.OpProfile) != 1 {
		t.Errorf("expected 1 backend read, got %d", gw.Calls(memory.OpProfile))
	}
	if again.Role != domain.RoleListener || again.RatingAverage != 4.5 || !again.IsAvailable || again.ListenerStatus != domain.ListenerVerified {
		t.Errorf("cached fields lost: %+v", again)
	}
}

func TestCacheInvalidate(t *testing.T) {
	cache, gw, _ := newTestCache(t)
	ctx := context.Background()

	cache.Profile(ctx, "p1")
	if err := cache.Invalidate(ctx, "p1"); err != nil {
		t.Fatalf("Invalidate() error: %v", err)
	}
	cache.Profile(ctx, "p1")
	if gw.Calls(memory.OpProfile) != 2 {
		t.Errorf("expected a reload after invalidate, got %d reads", gw.Calls(memory.OpProfile))
	}
}

func TestCacheMissingProfile(t *testing.T) {
	cache, _, _ := newTestCache(t)

	_, err := cache.Profile(context.Background(), "nobody")
	if !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
