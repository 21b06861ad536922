package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/backhaul-matching/internal/matcher"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are loaded from environment variables over defaults so the binary
// runs locally with nothing but an in-memory store.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr        string
	RedisPassword    string
	RedisRoutePrefix string

	KafkaBrokers      []string
	KafkaRouteTopic   string
	KafkaBookingTopic string

	PGDSN string

	MaxDeviationKm     float64
	DefaultDeviationKm float64
	CandidateBufferKm  float64
	CandidateLimit     int
	DefaultPageSize    int
	MaxPageSize        int
	TruckSpeedKmh      float64
	SearchTimeout      time.Duration

	PlatformCommissionPercent float64
	DriverPushEndpoint        string
	StripeAPIKey              string
	JWTSecret                 string

	LogLevel      string
	LogFormat     string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	m := matcher.DefaultConfig()
	return ServerConfig{
		HTTPAddr:                  ":8080",
		ReadTimeout:               5 * time.Second,
		WriteTimeout:              10 * time.Second,
		IdleTimeout:               120 * time.Second,
		ShutdownTimeout:           15 * time.Second,
		RedisRoutePrefix:          "routes",
		KafkaRouteTopic:           "route-events",
		KafkaBookingTopic:         "booking-events",
		MaxDeviationKm:            m.MaxDeviationKm,
		DefaultDeviationKm:        m.DefaultDeviationKm,
		CandidateBufferKm:         m.CandidateBufferKm,
		CandidateLimit:            m.CandidateLimit,
		DefaultPageSize:           m.DefaultPageSize,
		MaxPageSize:               m.MaxPageSize,
		TruckSpeedKmh:             m.TruckSpeedKmh,
		SearchTimeout:             3 * time.Second,
		PlatformCommissionPercent: 8,
		LogLevel:                  "info",
		LogFormat:                 "json",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisRoutePrefix, "REDIS_ROUTE_PREFIX")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaRouteTopic, "KAFKA_ROUTE_TOPIC")
	setStringFromEnv(&cfg.KafkaBookingTopic, "KAFKA_BOOKING_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setFloatFromEnv(&cfg.MaxDeviationKm, "MAX_DEVIATION_KM", &errs)
	setFloatFromEnv(&cfg.DefaultDeviationKm, "DEFAULT_DEVIATION_KM", &errs)
	setFloatFromEnv(&cfg.CandidateBufferKm, "CANDIDATE_BUFFER_KM", &errs)
	setIntFromEnv(&cfg.CandidateLimit, "CANDIDATE_LIMIT", &errs)
	setIntFromEnv(&cfg.DefaultPageSize, "SEARCH_DEFAULT_PAGE_SIZE", &errs)
	setIntFromEnv(&cfg.MaxPageSize, "SEARCH_MAX_PAGE_SIZE", &errs)
	setFloatFromEnv(&cfg.TruckSpeedKmh, "TRUCK_SPEED_KMH", &errs)
	setDurationFromEnv(&cfg.SearchTimeout, "SEARCH_TIMEOUT", &errs)

	setFloatFromEnv(&cfg.PlatformCommissionPercent, "PLATFORM_COMMISSION_PERCENT", &errs)
	cfg.StripeAPIKey = strings.TrimSpace(os.Getenv("STRIPE_API_KEY"))
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.DriverPushEndpoint = strings.TrimSpace(os.Getenv("DRIVER_PUSH_ENDPOINT"))

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(strings.TrimSpace(v))
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if err := cfg.MatcherConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.PlatformCommissionPercent < 0 || cfg.PlatformCommissionPercent > 100 {
		errs = append(errs, fmt.Errorf("PLATFORM_COMMISSION_PERCENT must be within [0, 100]"))
	}

	return cfg, errors.Join(errs...)
}

// MatcherConfig is the search policy slice of the server settings.
func (c ServerConfig) MatcherConfig() matcher.Config {
	return matcher.Config{
		MaxDeviationKm:     c.MaxDeviationKm,
		DefaultDeviationKm: c.DefaultDeviationKm,
		CandidateBufferKm:  c.CandidateBufferKm,
		CandidateLimit:     c.CandidateLimit,
		DefaultPageSize:    c.DefaultPageSize,
		MaxPageSize:        c.MaxPageSize,
		TruckSpeedKmh:      c.TruckSpeedKmh,
	}
}

// ConsumerConfig configures the route event consumer that keeps the Redis
// route index in sync.
type ConsumerConfig struct {
	KafkaBrokers     []string
	KafkaRouteTopic  string
	KafkaGroupID     string
	RedisAddr        string
	RedisPassword    string
	RedisRoutePrefix string
	MetricsAddr      string
	RetryAttempts    int
	RetryDelay       time.Duration
	LogLevel         string
	LogFormat        string
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := ConsumerConfig{
		KafkaBrokers:     []string{"localhost:9092"},
		KafkaRouteTopic:  "route-events",
		KafkaGroupID:     "route-indexer",
		RedisAddr:        "localhost:6379",
		RedisRoutePrefix: "routes",
		MetricsAddr:      ":9102",
		RetryAttempts:    3,
		RetryDelay:       100 * time.Millisecond,
		LogLevel:         "info",
		LogFormat:        "json",
	}
	var errs []error

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaRouteTopic, "KAFKA_ROUTE_TOPIC")
	setStringFromEnv(&cfg.KafkaGroupID, "KAFKA_GROUP_ID")
	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisRoutePrefix, "REDIS_ROUTE_PREFIX")
	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	setIntFromEnv(&cfg.RetryAttempts, "CONSUMER_RETRY_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.RetryDelay, "CONSUMER_RETRY_DELAY", &errs)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(strings.TrimSpace(v))
	}

	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS must list at least one broker"))
	}
	if cfg.RetryAttempts <= 0 {
		errs = append(errs, fmt.Errorf("CONSUMER_RETRY_ATTEMPTS must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
