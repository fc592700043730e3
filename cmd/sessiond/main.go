package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/onetalk/support-chat/internal/api"
	"github.com/onetalk/support-chat/internal/backend"
	"github.com/onetalk/support-chat/internal/backend/memory"
	"github.com/onetalk/support-chat/internal/backend/postgres"
	"github.com/onetalk/support-chat/internal/config"
	"github.com/onetalk/support-chat/internal/coordinator"
	"github.com/onetalk/support-chat/internal/domain"
	"github.com/onetalk/support-chat/internal/history"
	"github.com/onetalk/support-chat/internal/journal"
	"github.com/onetalk/support-chat/internal/matching"
	"github.com/onetalk/support-chat/internal/messaging"
	"github.com/onetalk/support-chat/internal/metrics"
	"github.com/onetalk/support-chat/internal/profile"
	"github.com/onetalk/support-chat/internal/ratelimit"
	"github.com/onetalk/support-chat/internal/rating"
	"github.com/onetalk/support-chat/internal/ws"
)

func main() {
	cfg := config.Load()

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	// --- Backend ---
	var (
		gw         backend.Gateway
		db         *sql.DB
		natsClient *messaging.NATSClient
	)
	if cfg.DatabaseURL == "" {
		log.Printf("[sessiond] DATABASE_URL not set, using the in-memory backend")
		gw = memory.New(nil)
	} else {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		var err error
		natsClient, err = messaging.NewNATSClient(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		db, err = postgres.Open(ctx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			log.Fatalf("failed to connect to Postgres: %v", err)
		}
		if err := postgres.MigrateUp(db); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
		gw = backend.Compose(postgres.NewStore(db, natsClient), natsClient)
	}

	profiles := profile.NewCache(rdb, gw, cfg.ProfileCacheTTL)
	limiter := ratelimit.NewLimiter(rdb)
	messageRule := ratelimit.Rule{
		Key:    ratelimit.RuleMessage.Key,
		Limit:  cfg.MessageRateLimit,
		Window: cfg.MessageRateWindow,
	}

	// --- Session bridge ---
	coordConfig := coordinator.DefaultConfig()
	coordConfig.TypingIdle = cfg.TypingIdle
	coordConfig.SettlementDelay = cfg.SettlementDelay
	coordConfig.CallTimeout = cfg.CallTimeout

	bridgeConfig := ws.DefaultServerConfig()
	bridgeConfig.MaxConnections = cfg.MaxConnections

	bridge := ws.NewServer(bridgeConfig, profiles, func(view coordinator.View, self domain.Participant, sessionID string) ws.Session {
		return coordinator.New(gw, view, self, sessionID, coordConfig,
			coordinator.WithProfiles(profiles),
			coordinator.WithSendLimiter(limiter.For(messageRule)),
		)
	})
	bridge.Start()

	// --- HTTP ---
	h := api.NewHandler(api.Deps{
		Gateway:  gw,
		Profiles: profiles,
		Starter:  matching.NewStarter(gw, limiter.For(ratelimit.RuleSessionStart)),
		Waiting:  matching.NewWaitingRoom(gw),
		Ratings:  rating.NewService(gw, profiles),
		History:  history.NewService(gw, profiles),
		Journal:  journal.NewService(gw),
		Profile:  profile.NewService(gw, profiles),
		Rename:   limiter.For(ratelimit.RuleRename),
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	h.RegisterRoutes(e)
	e.GET("/ws", echo.WrapHandler(http.HandlerFunc(bridge.HandleUpgrade)))
	e.GET("/ws/health", echo.WrapHandler(http.HandlerFunc(bridge.HandleHealth)))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	log.Printf("OneTalk session service starting")
	log.Printf("  listen_addr:      %s", cfg.ListenAddr)
	log.Printf("  redis_addr:       %s", cfg.RedisAddr)
	log.Printf("  nats_url:         %s", cfg.NATSURL)
	log.Printf("  settlement_delay: %s", cfg.SettlementDelay)
	log.Printf("  typing_idle:      %s", cfg.TypingIdle)
	log.Printf("  message_rate:     %d/%s", cfg.MessageRateLimit, cfg.MessageRateWindow)

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("[sessiond] shutting down...")
	bridge.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("[sessiond] http shutdown error: %v", err)
	}
	if natsClient != nil {
		natsClient.Close()
	}
	if db != nil {
		db.Close()
	}
	rdb.Close()
	log.Println("[sessiond] stopped")
}
