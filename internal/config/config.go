package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	PostgresDSN  string
	MongoURI     string
	RedisAddr    string
	RabbitURL    string
	OTLPEndpoint string

	// Payin/payout provider credentials.
	PaystackBaseURL string
	PaystackSecret  string
	KorapayBaseURL  string
	KorapaySecret   string

	AdminUserID string
	Currency    string

	// Business-level timeout after which a PENDING resale is abandoned.
	ResaleAbandonAfter time.Duration
	ReaperInterval     time.Duration
	CacheTTL           time.Duration
	CacheStaleWindow   time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	abandonAfter, _ := time.ParseDuration(os.Getenv("RESALE_ABANDON_AFTER"))
	if abandonAfter == 0 {
		abandonAfter = 30 * time.Minute
	}
	reaperInterval, _ := time.ParseDuration(os.Getenv("REAPER_INTERVAL"))
	if reaperInterval == 0 {
		reaperInterval = time.Minute
	}
	cacheTTL, _ := time.ParseDuration(os.Getenv("CACHE_TTL"))
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}
	staleWindow, _ := time.ParseDuration(os.Getenv("CACHE_STALE_WINDOW"))
	if staleWindow == 0 {
		staleWindow = time.Minute
	}
	currency := os.Getenv("CURRENCY")
	if currency == "" {
		currency = "NGN"
	}

	return &Config{
		PostgresDSN:        os.Getenv("POSTGRES_DSN"),
		MongoURI:           os.Getenv("MONGO_URI"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RabbitURL:          os.Getenv("RABBIT_URL"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		PaystackBaseURL:    os.Getenv("PAYSTACK_BASE_URL"),
		PaystackSecret:     os.Getenv("PAYSTACK_SECRET_KEY"),
		KorapayBaseURL:     os.Getenv("KORAPAY_BASE_URL"),
		KorapaySecret:      os.Getenv("KORAPAY_SECRET_KEY"),
		AdminUserID:        os.Getenv("ADMIN_USER_ID"),
		Currency:           currency,
		ResaleAbandonAfter: abandonAfter,
		ReaperInterval:     reaperInterval,
		CacheTTL:           cacheTTL,
		CacheStaleWindow:   staleWindow,
	}, nil
}
