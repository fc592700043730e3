package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestLimiter creates a Limiter connected to a local Redis instance.
// Requires Redis on localhost:6379; tests are skipped if unavailable.
func newTestLimiter(t *testing.T) (*Limiter, context.Context) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 14})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	client.FlushDB(ctx)
	t.Cleanup(func() {
		client.FlushDB(ctx)
		client.Close()
	})
	return NewLimiter(client), ctx
}

func TestAllow_WithinLimit(t *testing.T) {
	l, ctx := newTestLimiter(t)
	rule := Rule{Key: "rl:test:", Limit: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "p1", rule)
		if err != nil {
			t.Fatalf("Allow() error: %v", err)
		}
		if !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	ok, _ := l.Allow(ctx, "p1", rule)
	if ok {
		t.Error("fourth request should be rate limited")
	}
}

func TestAllow_IdentifiersIndependent(t *testing.T) {
	l, ctx := newTestLimiter(t)
	rule := Rule{Key: "rl:test:", Limit: 1, Window: time.Minute}

	l.Allow(ctx, "p1", rule)
	ok, _ := l.Allow(ctx, "p2", rule)
	if !ok {
		t.Error("p2 should not share p1's window")
	}
}

func TestRemaining(t *testing.T) {
	l, ctx := newTestLimiter(t)
	rule := Rule{Key: "rl:test:", Limit: 5, Window: time.Minute}

	left, err := l.Remaining(ctx, "p1", rule)
	if err != nil || left != 5 {
		t.Fatalf("Remaining() = %d, %v; want 5, nil", left, err)
	}

	l.Allow(ctx, "p1", rule)
	l.Allow(ctx, "p1", rule)
	left, _ = l.Remaining(ctx, "p1", rule)
	if left != 3 {
		t.Errorf("Remaining() = %d, want 3", left)
	}
}

func TestRuleLimiter(t *testing.T) {
	l, ctx := newTestLimiter(t)
	bound := l.For(Rule{Key: "rl:test:", Limit: 1, Window: time.Minute})

	if ok, _ := bound.Allow(ctx, "p1"); !ok {
		t.Fatal("first request should be allowed")
	}
	if ok, _ := bound.Allow(ctx, "p1"); ok {
		t.Error("second request should be rate limited")
	}
}

func TestAllow_FailsOpenWithoutRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	ok, err := NewLimiter(client).Allow(context.Background(), "p1", RuleMessage)
	if err == nil {
		t.Skip("unexpectedly reached a server on localhost:1")
	}
	if !ok {
		t.Error("Allow() should fail open on Redis errors")
	}
}
