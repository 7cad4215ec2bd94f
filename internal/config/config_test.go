package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "15")
	t.Setenv("REFRESH_TOKEN_TTL_DAYS", "7")
	t.Setenv("BCRYPT_COST", "4")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_DRIVER", "sqlite")

	cfg := Load()
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Contains(t, cfg.DBDSN, "scan-rewards.db")
	assert.Equal(t, 16, cfg.QRTokenBytes)
	assert.Equal(t, "TJ1", cfg.QRPrefix)
	assert.Equal(t, int64(1), cfg.RewardPerScan)
	assert.Equal(t, time.UTC, cfg.AwardLocation)
	assert.Equal(t, "none", cfg.EventsBroker)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "scan.awarded", cfg.KafkaTopic)
	assert.False(t, cfg.EventsConsumer)
	assert.Equal(t, 15, cfg.AccessTTLMin)
}

func TestLoad_ScanSettings(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_DRIVER", "MYSQL")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "scan")
	t.Setenv("QR_TOKEN_BYTES", "20")
	t.Setenv("QR_PREFIX", " abc ")
	t.Setenv("COIN_REWARD_PER_SCAN", "5")
	t.Setenv("AWARD_TIMEZONE", "America/Mexico_City")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("EVENTS_BROKER", "Kafka")

	cfg := Load()
	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, "app@tcp(db:3306)/scan?charset=utf8mb4&parseTime=true&loc=UTC", cfg.DBDSN)
	assert.Equal(t, 20, cfg.QRTokenBytes)
	assert.Equal(t, "ABC", cfg.QRPrefix)
	assert.Equal(t, int64(5), cfg.RewardPerScan)
	require.NotNil(t, cfg.AwardLocation)
	assert.Equal(t, "America/Mexico_City", cfg.AwardLocation.String())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "kafka", cfg.EventsBroker)
}

func TestLoad_TokenBytesFallback(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_DRIVER", "sqlite")
	for _, v := range []string{"0", "-3", "many"} {
		t.Setenv("QR_TOKEN_BYTES", v)
		assert.Equal(t, 16, Load().QRTokenBytes, v)
	}
}

func TestLoad_ExplicitDSN(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "postgres://u:p@pg:5432/scan?sslmode=disable")
	assert.Equal(t, "postgres://u:p@pg:5432/scan?sslmode=disable", Load().DBDSN)
}

func TestLoadRateLimitConfig_Defaults(t *testing.T) {
	cfg := LoadRateLimitConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 120, cfg.Capacity)
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.Equal(t, 7500*time.Millisecond, cfg.RefillInterval)
	assert.Equal(t, "user_route", cfg.KeyStrategy)
	assert.Equal(t, 30*time.Minute, cfg.TTL)
}

func TestLoadRateLimitConfig_Overrides(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "1m")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	t.Setenv("RATE_LIMIT_ENABLED", "off")

	cfg := LoadRateLimitConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 10, cfg.Capacity)
	assert.Equal(t, time.Minute, cfg.RefillInterval)
	assert.Equal(t, 5*time.Minute, cfg.TTL)
}

func TestRedisOptions(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("REDIS_DB", "3")
	opts := RedisOptions()
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Nil(t, opts.TLSConfig)

	t.Setenv("REDIS_HOST", "r")
	t.Setenv("REDIS_PORT", "1")
	t.Setenv("REDIS_TLS", "1")
	opts = RedisOptions()
	assert.Equal(t, "r:1", opts.Addr)
	assert.NotNil(t, opts.TLSConfig)
}
