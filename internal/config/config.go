// Package config loads sessiond settings from the environment. A .env file
// in the working directory, if present, is read first.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr     string
	DatabaseURL    string // empty runs against the in-memory backend
	NATSURL        string
	RedisAddr      string
	RedisDB        int
	MaxConnections int

	SettlementDelay time.Duration
	TypingIdle      time.Duration
	CallTimeout     time.Duration

	MessageRateLimit  int
	MessageRateWindow time.Duration
	ProfileCacheTTL   time.Duration
}

// Load reads the configuration. Malformed values fall back to defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] .env: %v", err)
	}

	cfg := Config{
		ListenAddr:        getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL:       getenv("DATABASE_URL", ""),
		NATSURL:           getenv("NATS_URL", "nats://localhost:4222"),
		RedisAddr:         getenv("REDIS_ADDR", "localhost:6379"),
		RedisDB:           getenvInt("REDIS_DB", 0),
		MaxConnections:    getenvInt("MAX_CONNECTIONS", 10000),
		SettlementDelay:   getenvDuration("SETTLEMENT_DELAY", 2*time.Second),
		TypingIdle:        getenvDuration("TYPING_IDLE", 2*time.Second),
		CallTimeout:       getenvDuration("CALL_TIMEOUT", 10*time.Second),
		MessageRateLimit:  getenvInt("MESSAGE_RATE_LIMIT", 5),
		MessageRateWindow: getenvDuration("MESSAGE_RATE_WINDOW", 10*time.Second),
		ProfileCacheTTL:   getenvDuration("PROFILE_CACHE_TTL", 10*time.Minute),
	}

	if cfg.MaxConnections < 1 {
		cfg.MaxConnections = 10000
	}
	if cfg.MessageRateLimit < 1 {
		cfg.MessageRateLimit = 5
	}
	if cfg.MessageRateWindow <= 0 {
		cfg.MessageRateWindow = 10 * time.Second
	}

	return cfg
}

func getenv(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func getenvInt(name string, fallback int) int {
	value := os.Getenv(name)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(name string, fallback time.Duration) time.Duration {
	value := os.Getenv(name)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
