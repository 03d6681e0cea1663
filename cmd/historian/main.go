// cmd/historian is an asynchronous historian service that pops action records from a Redis
// queue and persists them to a PostgreSQL database.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/sto/internal/cache"
	"github.com/jason-s-yu/sto/internal/config"
	"github.com/jason-s-yu/sto/internal/database"
	"github.com/jason-s-yu/sto/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to an optional YAML config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Redis.Addr == "" {
		logger.Fatal("REDIS_ADDR is required")
	}
	if cfg.Postgres.URL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.DB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	pool, err := database.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		logger.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	store := database.NewActionStore(pool)
	if err := store.Migrate(ctx); err != nil {
		logger.Fatalf("postgres: %v", err)
	}

	svc := historian.New(cache.NewQueue(rdb, cfg.Redis.Queue), store, historian.Config{
		BatchSize:       cfg.Historian.BatchSize,
		FlushInterval:   cfg.Historian.FlushInterval,
		PopTimeout:      cfg.Historian.PopTimeout,
		Inactivity:      cfg.Historian.Inactivity,
		InactivityCheck: cfg.Historian.InactivityCheck,
	}, logger)

	if err := svc.Run(ctx); err != nil {
		logger.Fatalf("historian exited: %v", err)
	}
	logger.Info("Historian shutdown complete.")
}
