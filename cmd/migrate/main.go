package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/onetalk/support-chat/internal/backend/postgres"
	"github.com/onetalk/support-chat/internal/config"
)

func main() {
	down := flag.Int("down", 0, "roll back this many migrations instead of migrating up")
	flag.Parse()

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatalf("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	defer db.Close()

	if *down > 0 {
		if err := postgres.MigrateDown(db, *down); err != nil {
			log.Fatalf("%v", err)
		}
		log.Printf("[migrate] rolled back %d migration(s)", *down)
		return
	}
	if err := postgres.MigrateUp(db); err != nil {
		log.Fatalf("%v", err)
	}
}
