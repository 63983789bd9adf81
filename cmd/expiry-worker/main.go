package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/tour-checkout/internal/adapters/crdb"
	redisadapter "github.com/robertarktes/tour-checkout/internal/adapters/redis"
	"github.com/robertarktes/tour-checkout/internal/config"
	"github.com/robertarktes/tour-checkout/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg, "checkout-expiry-worker")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)

	owner, _ := os.Hostname()
	owner += "-" + uuid.NewString()[:8]

	worker := NewExpiryWorker(repo, redisCache, redisadapter.NewAttemptStore(redisCache, cfg.WidgetSessionTTL+24*time.Hour), cfg.WidgetSessionTTL, owner, logger)
	worker.Run(ctx, time.Minute)
	logger.Info("Shutdown expiry worker")
}
