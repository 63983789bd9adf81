package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/tour-checkout/internal/adapters/backend"
	"github.com/robertarktes/tour-checkout/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/tour-checkout/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/tour-checkout/internal/adapters/redis"
	"github.com/robertarktes/tour-checkout/internal/checkout"
	"github.com/robertarktes/tour-checkout/internal/config"
	httphandler "github.com/robertarktes/tour-checkout/internal/http"
	"github.com/robertarktes/tour-checkout/internal/idempotency"
	"github.com/robertarktes/tour-checkout/internal/observability"
	"github.com/robertarktes/tour-checkout/internal/rateLimit"
	"github.com/robertarktes/tour-checkout/internal/widget"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := observability.SetupOTel(ctx, cfg, "checkout-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	crdbRepo := crdb.NewRepository(pool)
	if err := crdbRepo.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate crdb: %v", err)
	}

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
	rl := rateLimit.NewRateLimiter(redisCache)
	attempts := redisadapter.NewAttemptStore(redisCache, cfg.WidgetSessionTTL+24*time.Hour)

	backendClient := backend.NewClient(cfg.BackendURL, cfg.PaymentGateway, cfg.BackendTimeout, logger)

	checks := map[string]httphandler.ReadinessCheck{
		"crdb":  pool.Ping,
		"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}

	var source redisadapter.Catalog = backendClient
	if cfg.CatalogSource == "mongo" {
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatalf("failed to connect to mongo: %v", err)
		}
		defer mongoClient.Disconnect(context.Background())
		source = mongoadapter.NewCatalogRepository(mongoClient.Database(cfg.MongoDatabase), logger)
		checks["mongo"] = func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) }
	}
	catalog := redisadapter.NewCachedCatalog(source, redisCache, cfg.PackageCacheTTL, logger)

	hub := widget.NewHub(logger)
	payWidget := widget.New(widget.NewScriptLoader(cfg.WidgetScriptURL, &http.Client{
		Timeout:   cfg.BackendTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}), hub)

	svc := checkout.NewService(catalog, backendClient, payWidget, logger,
		checkout.WithLedger(crdbRepo),
		checkout.WithCurrency(cfg.Currency),
	)

	handlers := httphandler.NewHandlers(svc, hub, attempts, cfg.WidgetSessionTTL, checks, logger)
	r := httphandler.SetupRouter(handlers, logger, rl, idemp, httphandler.RouterConfig{JWTSecret: cfg.JWTSecret})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", cfg.HTTPAddr).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown Server ...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return handlers.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithField("error", err.Error()).Error("Server stopped with error")
	}
	logger.Info("Server exiting")
}
