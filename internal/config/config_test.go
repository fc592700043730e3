package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"LISTEN_ADDR", "DATABASE_URL", "SETTLEMENT_DELAY", "MESSAGE_RATE_LIMIT", "PROFILE_CACHE_TTL"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 2*time.Second, cfg.SettlementDelay)
	assert.Equal(t, 5, cfg.MessageRateLimit)
	assert.Equal(t, 10*time.Minute, cfg.ProfileCacheTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/onetalk")
	t.Setenv("SETTLEMENT_DELAY", "500ms")
	t.Setenv("MESSAGE_RATE_LIMIT", "20")
	t.Setenv("MESSAGE_RATE_WINDOW", "1m")

	cfg := Load()

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "postgres://localhost/onetalk", cfg.DatabaseURL)
	assert.Equal(t, 500*time.Millisecond, cfg.SettlementDelay)
	assert.Equal(t, 20, cfg.MessageRateLimit)
	assert.Equal(t, time.Minute, cfg.MessageRateWindow)
}

func TestLoadMalformedFallsBack(t *testing.T) {
	t.Setenv("TYPING_IDLE", "soon")
	t.Setenv("MESSAGE_RATE_LIMIT", "-3")
	t.Setenv("MAX_CONNECTIONS", "many")

	cfg := Load()

	assert.Equal(t, 2*time.Second, cfg.TypingIdle)
	assert.Equal(t, 5, cfg.MessageRateLimit)
	assert.Equal(t, 10000, cfg.MaxConnections)
}
