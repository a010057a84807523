package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/ticketbay/settlement/internal/adapters/pg"
	redisadapter "github.com/ticketbay/settlement/internal/adapters/redis"
	"github.com/ticketbay/settlement/internal/config"
	"github.com/ticketbay/settlement/internal/observability"
	"github.com/ticketbay/settlement/internal/settlement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	adminID, err := uuid.Parse(cfg.AdminUserID)
	if err != nil {
		log.Fatalf("invalid ADMIN_USER_ID: %v", err)
	}

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := pg.NewRepository(pool, adminID)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	cache := redisadapter.NewCache(redisClient, logger)

	reaper := settlement.NewReaper(repo, cache, logger, cfg.ResaleAbandonAfter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go reaper.Run(ctx, cfg.ReaperInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown resale reaper")
}
