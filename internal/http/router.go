package http

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/tour-checkout/internal/observability"
)

type RouterConfig struct {
	JWTSecret       string
	AttemptRate     int
	AttemptRateSpan time.Duration
}

func SetupRouter(h *Handlers, logger observability.Logger, rl RateLimiter, idemp Idempotency, cfg RouterConfig) *chi.Mux {
	if cfg.AttemptRate == 0 {
		cfg.AttemptRate = 10
	}
	if cfg.AttemptRateSpan == 0 {
		cfg.AttemptRateSpan = time.Minute
	}

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/v1/checkout", func(r chi.Router) {
		r.Use(JWTMiddleware(cfg.JWTSecret))

		r.Get("/packages/{slug}", h.GetPackage)
		r.With(
			RateLimitMiddleware(rl, logger, cfg.AttemptRate, cfg.AttemptRateSpan),
			IdempotencyMiddleware(idemp, logger),
		).Post("/attempts", h.CreateAttempt)
		r.Get("/attempts/{orderId}", h.GetAttempt)
		r.Post("/attempts/{orderId}/events", h.DeliverEvent)
	})

	return r
}
