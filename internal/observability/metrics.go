package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_attempts_total",
			Help: "Checkout attempts by checkout type and result of order creation",
		},
		[]string{"checkout_type", "result"},
	)

	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_outcomes_total",
			Help: "Terminal payment outcomes by status and failure code",
		},
		[]string{"status", "code"},
	)

	BackendCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkout_backend_call_seconds",
			Help:    "Duration of calls to the catalog and payments backend",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "code"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "checkout_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "checkout_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	OutboxPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_outbox_publish_failures_total",
			Help: "Total failed outbox publish attempts",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)

	OpenWidgetSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "checkout_widget_sessions_open",
			Help: "Widget sessions awaiting a terminal callback",
		},
	)
)
