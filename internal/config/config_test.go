package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, cfg.Providers, 3)
	assert.Equal(t, "alpaca", cfg.Providers[0].Name)
	assert.Equal(t, 200, cfg.Providers[0].RateLimitRequests)
	assert.Equal(t, "yahoo", cfg.Providers[2].Name)

	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 60, cfg.Breaker.OpenSeconds)
	assert.Equal(t, 2, cfg.Breaker.HalfOpenSuccesses)

	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 100, cfg.Retry.InitialDelayMs)
	assert.InDelta(t, 0.15, cfg.Retry.JitterFraction, 1e-9)

	assert.Equal(t, "memory", cfg.Cache.L2Backend)
	assert.Equal(t, 100, cfg.Cache.L1BudgetMB)
	assert.Equal(t, 15*60, int(cfg.Cache.L2TTL().Seconds()))

	assert.InDelta(t, 4.0, cfg.Validation.ZScoreThreshold, 1e-9)
	assert.InDelta(t, 10.0, cfg.Validation.GapThresholdPct, 1e-9)
	assert.InDelta(t, 0.95, cfg.Validation.QualityPassThreshold, 1e-9)
	assert.InDelta(t, 1.0,
		cfg.Validation.WeightAccuracy+cfg.Validation.WeightCompleteness+
			cfg.Validation.WeightTimeliness+cfg.Validation.WeightConsistency, 1e-9)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ":8080", cfg.Server.DebugAddr)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
providers:
  - name: polygon
    priority: 0
    rate_limit_requests: 42
circuit_breaker:
  failure_threshold: 3
cache:
  l2_backend: redis
  redis:
    addr: redis.internal:6379
validation:
  zscore_threshold: 3.5
`)
	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "polygon", cfg.Providers[0].Name)
	assert.Equal(t, 42, cfg.Providers[0].RateLimitRequests)
	assert.Equal(t, 60, cfg.Providers[0].RateLimitSeconds, "unset fields still get defaults")
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, "redis", cfg.Cache.L2Backend)
	assert.Equal(t, "redis.internal:6379", cfg.Cache.Redis.Addr)
	assert.InDelta(t, 3.5, cfg.Validation.ZScoreThreshold, 1e-9)
}

func TestLoad_SecretsFromEnvironmentOnly(t *testing.T) {
	t.Setenv("ALPACA_KEY_ID", "test-key")
	t.Setenv("ALPACA_SECRET_KEY", "test-secret")
	t.Setenv("POLYGON_API_KEY", "poly-key")

	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "test-key", cfg.Secrets.AlpacaKeyID)
	assert.Equal(t, "test-secret", cfg.Secrets.AlpacaSecretKey)
	assert.Equal(t, "poly-key", cfg.Secrets.PolygonAPIKey)
}

func TestLoad_EnvOverlaysFile(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEBUG_ADDR", ":9999")

	path := writeConfig(t, `
logging:
  level: warn
`)
	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level, "environment wins over the file")
	assert.Equal(t, ":9999", cfg.Server.DebugAddr)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(context.Background(), "/does/not/exist.yaml")
	assert.Error(t, err)
}
