package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())

	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 10.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 120, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 3000, cfg.RateLimit.RequestsPerHour)
	assert.Equal(t, 20, cfg.RateLimit.BurstSize)
	assert.Equal(t, "fixed_window", cfg.RateLimit.HourTierAlgorithm)
	assert.Equal(t, []string{"/health", "/healthz", "/metrics"}, cfg.RateLimit.ExemptPaths)

	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.MinWait)
	assert.Equal(t, 8*time.Second, cfg.Retry.MaxWait)

	assert.Equal(t, 10*time.Second, cfg.Health.CheckTimeout)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_PerMinuteFloor(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MINUTE", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.RateLimit.RequestsPerMinute, "values below the floor are raised, not rejected")
}

func TestLoad_PerMinuteAboveFloorKept(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MINUTE", "240")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 240, cfg.RateLimit.RequestsPerMinute)
}

func TestLoad_LegacyEnvNames(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("PROMETHEUS_METRICS_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Providers.OpenAI.APIKey)
	assert.Equal(t, "sk-ant-test", cfg.Providers.Anthropic.APIKey)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_PrefixedEnvOverrides(t *testing.T) {
	t.Setenv("HELIX_SERVER_PORT", "9090")
	t.Setenv("HELIX_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
environment: production
server:
  port: 9000
rate_limit:
  requests_per_second: 2.5
  burst_size: 5
  endpoint_overrides:
    - path_prefix: /completion
      requests_per_second: 1
      burst_size: 2
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 2.5, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 5, cfg.RateLimit.BurstSize)
	require.Len(t, cfg.RateLimit.EndpointOverrides, 1)
	assert.Equal(t, "/completion", cfg.RateLimit.EndpointOverrides[0].PathPrefix)
	assert.Equal(t, 2, cfg.RateLimit.EndpointOverrides[0].BurstSize)
}

func TestLoad_MissingFileIsSkipped(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestLoad_ValidationRejectsBadValues(t *testing.T) {
	t.Setenv("HELIX_LOG_LEVEL", "verbose")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}
