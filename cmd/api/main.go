package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	mongoadapter "github.com/ticketbay/settlement/internal/adapters/mongo"
	"github.com/ticketbay/settlement/internal/adapters/pg"
	"github.com/ticketbay/settlement/internal/adapters/rabbit"
	redisadapter "github.com/ticketbay/settlement/internal/adapters/redis"
	"github.com/ticketbay/settlement/internal/config"
	"github.com/ticketbay/settlement/internal/gateway"
	httphandler "github.com/ticketbay/settlement/internal/http"
	"github.com/ticketbay/settlement/internal/idempotency"
	"github.com/ticketbay/settlement/internal/notify"
	"github.com/ticketbay/settlement/internal/observability"
	"github.com/ticketbay/settlement/internal/ratelimit"
	"github.com/ticketbay/settlement/internal/settlement"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

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

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLog(mongoClient.Database("settlement"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	cache := redisadapter.NewCache(redisClient, logger)
	idemp := idempotency.New(redisClient, time.Hour)
	rl := ratelimit.NewRateLimiter(cache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}
	dispatcher := notify.NewDispatcher(rabbitPub, logger)

	korapay := gateway.NewKorapay(cfg.KorapayBaseURL, cfg.KorapaySecret)
	registry := gateway.NewRegistry()
	registry.Register(gateway.NewPaystack(cfg.PaystackBaseURL, cfg.PaystackSecret))
	registry.Register(korapay)
	payouts, err := registry.PayoutClient()
	if err != nil {
		log.Fatalf("no payout provider configured: %v", err)
	}

	engine := settlement.NewEngine(repo, registry, payouts, cache, dispatcher, audit, logger, cfg.Currency)

	handlers := httphandler.NewHandlers(cfg, engine, repo, cache, idemp, korapay, audit)
	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
