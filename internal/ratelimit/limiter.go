// Package ratelimit provides Redis-backed fixed window rate limiting using
// INCR + EXPIRE. Each action (sending a message, requesting a session,
// renaming a profile) is throttled per profile.
package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number of
// requests allowed in the window, and the window duration.
type Rule struct {
	Key    string        // Redis key prefix (e.g., "rl:msg:", "rl:start:")
	Limit  int           // max count in the window
	Window time.Duration // time window
}

var (
	// RuleMessage allows 5 messages per 10 seconds per profile.
	RuleMessage = Rule{Key: "rl:msg:", Limit: 5, Window: 10 * time.Second}

	// RuleSessionStart allows 5 session requests per minute per profile.
	RuleSessionStart = Rule{Key: "rl:start:", Limit: 5, Window: time.Minute}

	// RuleRename allows 3 nickname changes per hour per profile.
	RuleRename = Rule{Key: "rl:rename:", Limit: 3, Window: time.Hour}
)

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client redis.Cmdable
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client redis.Cmdable) *Limiter {
	return &Limiter{client: client}
}

// Allow checks whether the given identifier is within the rate limit defined by
// rule. It increments the counter in Redis and sets the expiry on first access.
//
// Returns true if the request is allowed, false if rate limited. On Redis
// errors the method fails open (returns true) so that a Redis outage does not
// block a conversation.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] redis INCR error key=%s: %v (failing open)", key, err)
		return true, err
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			log.Printf("[ratelimit] redis EXPIRE error key=%s: %v (failing open)", key, err)
			// A key without TTL would block the identifier forever.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	return int(count) <= rule.Limit, nil
}

// Remaining returns the number of requests the identifier has left in the
// current window for the given rule. On Redis errors it returns the full
// limit.
func (l *Limiter) Remaining(ctx context.Context, identifier string, rule Rule) (int, error) {
	key := rule.Key + identifier

	count, err := l.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return rule.Limit, nil
	}
	if err != nil {
		log.Printf("[ratelimit] redis GET error key=%s: %v (failing open)", key, err)
		return rule.Limit, err
	}

	return max(rule.Limit-count, 0), nil
}

// For binds the limiter to one rule.
func (l *Limiter) For(rule Rule) *RuleLimiter {
	return &RuleLimiter{limiter: l, rule: rule}
}

// RuleLimiter is a Limiter fixed to a single Rule.
type RuleLimiter struct {
	limiter *Limiter
	rule    Rule
}

// Allow reports whether identifier may perform the bound action now.
func (r *RuleLimiter) Allow(ctx context.Context, identifier string) (bool, error) {
	return r.limiter.Allow(ctx, identifier, r.rule)
}
