package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/backhaul-matching/internal/matcher"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "routes", cfg.RedisRoutePrefix)
	assert.Equal(t, 8.0, cfg.PlatformCommissionPercent)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.False(t, cfg.RunMigrations)
	assert.Equal(t, matcher.DefaultConfig(), cfg.MatcherConfig())
}

func TestLoadServerConfigFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("HTTP_READ_TIMEOUT", "2s")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("KAFKA_ROUTE_TOPIC", "routes.v2")
	t.Setenv("MAX_DEVIATION_KM", "80")
	t.Setenv("DEFAULT_DEVIATION_KM", "30")
	t.Setenv("CANDIDATE_LIMIT", "500")
	t.Setenv("TRUCK_SPEED_KMH", "50")
	t.Setenv("PLATFORM_COMMISSION_PERCENT", "10")
	t.Setenv("LOG_FORMAT", "TEXT")
	t.Setenv("MIGRATE", "TRUE")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "routes.v2", cfg.KafkaRouteTopic)
	assert.Equal(t, 10.0, cfg.PlatformCommissionPercent)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.True(t, cfg.RunMigrations)

	m := cfg.MatcherConfig()
	assert.Equal(t, 80.0, m.MaxDeviationKm)
	assert.Equal(t, 30.0, m.DefaultDeviationKm)
	assert.Equal(t, 500, m.CandidateLimit)
	assert.Equal(t, 50.0, m.TruckSpeedKmh)
}

func TestLoadServerConfigJoinsErrors(t *testing.T) {
	t.Setenv("HTTP_READ_TIMEOUT", "soon")
	t.Setenv("CANDIDATE_LIMIT", "many")
	t.Setenv("DEFAULT_DEVIATION_KM", "150")
	t.Setenv("PLATFORM_COMMISSION_PERCENT", "120")

	_, err := LoadServerConfig()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "HTTP_READ_TIMEOUT")
	assert.Contains(t, msg, "CANDIDATE_LIMIT")
	assert.Contains(t, msg, "default deviation")
	assert.Contains(t, msg, "PLATFORM_COMMISSION_PERCENT")
}

func TestLoadServerConfigRejectsNaNDeviation(t *testing.T) {
	t.Setenv("MAX_DEVIATION_KM", "NaN")

	_, err := LoadServerConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max deviation must be a finite number")
}

func TestLoadConsumerConfig(t *testing.T) {
	cfg, err := LoadConsumerConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "route-indexer", cfg.KafkaGroupID)
	assert.Equal(t, 3, cfg.RetryAttempts)

	t.Setenv("KAFKA_GROUP_ID", "indexer-b")
	t.Setenv("CONSUMER_RETRY_ATTEMPTS", "0")
	cfg, err = LoadConsumerConfig()
	require.Error(t, err)
	assert.Equal(t, "indexer-b", cfg.KafkaGroupID)
}
