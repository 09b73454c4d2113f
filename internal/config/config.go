package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/robertarktes/seatcheckout/internal/pricing"
)

type Config struct {
	HTTPAddr     string
	BackendURL   string
	BackendTO    time.Duration
	CRDBDSN      string
	MongoURI     string
	MongoDB      string
	RedisAddr    string
	RabbitURL    string
	JWTPublicKey string
	OTLPEndpoint string
	LogLevel     string

	MaxSeats              int
	RatePollInterval      time.Duration
	DefaultConversionRate decimal.Decimal
	LayoutCacheTTL        time.Duration
	SessionIdleTTL        time.Duration
	IdempotencyTTL        time.Duration
	RateLimitPerMinute    int
	SessionSweepInterval  time.Duration
	OutboxPollInterval    time.Duration

	SeatMap pricing.Surface
	Tickets pricing.Surface
	Venue   pricing.Surface
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	rate, err := decimal.NewFromString(getenv("DEFAULT_CONVERSION_RATE", "1"))
	if err != nil || !rate.IsPositive() {
		rate = decimal.NewFromInt(1)
	}

	return &Config{
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		BackendURL:   getenv("BACKEND_URL", "http://localhost:8081"),
		BackendTO:    duration("BACKEND_TIMEOUT", 10*time.Second),
		CRDBDSN:      os.Getenv("CRDB_DSN"),
		MongoURI:     os.Getenv("MONGO_URI"),
		MongoDB:      getenv("MONGO_DB", "seatcheckout"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RabbitURL:    os.Getenv("RABBIT_URL"),
		JWTPublicKey: os.Getenv("JWT_PUBLIC_KEY"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel:     getenv("LOG_LEVEL", "info"),

		MaxSeats:              integer("MAX_SEATS", 10),
		RatePollInterval:      duration("RATE_POLL_INTERVAL", 30*time.Second),
		DefaultConversionRate: rate,
		LayoutCacheTTL:        duration("LAYOUT_CACHE_TTL", 15*time.Second),
		SessionIdleTTL:        duration("SESSION_IDLE_TTL", 30*time.Minute),
		IdempotencyTTL:        duration("IDEMPOTENCY_TTL", time.Hour),
		RateLimitPerMinute:    integer("RATE_LIMIT_PER_MINUTE", 120),
		SessionSweepInterval:  duration("SESSION_SWEEP_INTERVAL", time.Minute),
		OutboxPollInterval:    duration("OUTBOX_POLL_INTERVAL", time.Second),

		SeatMap: pricing.Surface{
			Name:              "seatmap",
			PlatformFeePoints: int64(integer("SEATMAP_PLATFORM_FEE_POINTS", 0)),
			CapRounding:       pricing.Floor,
		},
		Tickets: pricing.Surface{
			Name:              "tickets",
			PlatformFeePoints: int64(integer("TICKETS_PLATFORM_FEE_POINTS", 2)),
			CapRounding:       pricing.Ceil,
		},
		Venue: pricing.Surface{
			Name:              "venue",
			PlatformFeePoints: int64(integer("VENUE_PLATFORM_FEE_POINTS", 2)),
			CapRounding:       pricing.Ceil,
		},
	}, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration) time.Duration {
	d, _ := time.ParseDuration(os.Getenv(key))
	if d <= 0 {
		return def
	}
	return d
}

func integer(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n < 0 {
		return def
	}
	return n
}
