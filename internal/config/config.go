package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr         string
	BackendURL       string
	PaymentGateway   string
	WidgetScriptURL  string
	Currency         string
	CatalogSource    string // backend, mongo
	EventBroker      string // rabbit, kafka
	CRDBDSN          string
	MongoURI         string
	MongoDatabase    string
	RedisAddr        string
	RabbitURL        string
	AuditQueue       string
	KafkaBrokers     []string
	KafkaTopic       string
	JWTSecret        string
	BackendTimeout   time.Duration
	PackageCacheTTL  time.Duration
	WidgetSessionTTL time.Duration
	IdempotencyTTL   time.Duration
	OTLPEndpoint     string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		BackendURL:       strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:5000/api"), "/"),
		PaymentGateway:   getEnv("PAYMENT_GATEWAY", "razorpay"),
		WidgetScriptURL:  getEnv("WIDGET_SCRIPT_URL", "https://checkout.razorpay.com/v1/checkout.js"),
		Currency:         getEnv("CURRENCY", "INR"),
		CatalogSource:    getEnv("CATALOG_SOURCE", "backend"),
		EventBroker:      getEnv("EVENT_BROKER", "rabbit"),
		CRDBDSN:          os.Getenv("CRDB_DSN"),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDatabase:    getEnv("MONGO_DATABASE", "checkout"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RabbitURL:        os.Getenv("RABBIT_URL"),
		AuditQueue:       getEnv("AUDIT_QUEUE", "checkout.audit"),
		KafkaBrokers:     splitAndTrim(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "checkout.events"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		BackendTimeout:   getDuration("BACKEND_TIMEOUT", 30*time.Second),
		PackageCacheTTL:  getDuration("PACKAGE_CACHE_TTL", 5*time.Minute),
		WidgetSessionTTL: getDuration("WIDGET_SESSION_TTL", 30*time.Minute),
		IdempotencyTTL:   getDuration("IDEMPOTENCY_TTL", time.Hour),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, _ := time.ParseDuration(os.Getenv(key))
	if d == 0 {
		return fallback
	}
	return d
}

func splitAndTrim(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
