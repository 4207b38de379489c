// Package config loads gateway configuration from YAML files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var validate = validator.New()

// Config is the full gateway configuration.
type Config struct {
	Environment string       `mapstructure:"environment"`
	Log         LogConfig    `mapstructure:"log"`
	Server      ServerConfig `mapstructure:"server"`
	RateLimit   RateLimit    `mapstructure:"rate_limit"`
	Redis       RedisConfig  `mapstructure:"redis"`
	Providers   Providers    `mapstructure:"providers"`
	Retry       RetryConfig  `mapstructure:"retry"`
	Health      HealthConfig `mapstructure:"health"`
	Metrics     Metrics      `mapstructure:"metrics"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RateLimit mirrors the limiter policy surface.
type RateLimit struct {
	Enabled           bool               `mapstructure:"enabled"`
	RequestsPerSecond float64            `mapstructure:"requests_per_second" validate:"gte=0"`
	RequestsPerMinute int                `mapstructure:"requests_per_minute" validate:"gte=0"`
	RequestsPerHour   int                `mapstructure:"requests_per_hour" validate:"gte=0"`
	BurstSize         int                `mapstructure:"burst_size" validate:"gte=0"`
	HourTierAlgorithm string             `mapstructure:"hour_tier_algorithm" validate:"omitempty,oneof=fixed_window sliding_window"`
	ExemptPaths       []string           `mapstructure:"exempt_paths"`
	EndpointOverrides []EndpointOverride `mapstructure:"endpoint_overrides"`
	SweepInterval     time.Duration      `mapstructure:"sweep_interval"`
	SweepMaxIdle      time.Duration      `mapstructure:"sweep_max_idle"`
}

// EndpointOverride replaces base limits under a path prefix.
type EndpointOverride struct {
	PathPrefix        string  `mapstructure:"path_prefix" validate:"required"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute"`
	RequestsPerHour   int     `mapstructure:"requests_per_hour"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// RedisConfig enables the shared limiter store when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Providers holds per-upstream settings.
type Providers struct {
	OpenAI    ProviderConfig `mapstructure:"openai"`
	Anthropic ProviderConfig `mapstructure:"anthropic"`
}

// ProviderConfig holds one upstream's settings.
type ProviderConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RetryConfig bounds upstream retries.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=1"`
	MinWait     time.Duration `mapstructure:"min_wait"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
}

// HealthConfig controls the health monitor.
type HealthConfig struct {
	CheckTimeout time.Duration `mapstructure:"check_timeout"`
}

// Metrics toggles the Prometheus endpoint.
type Metrics struct {
	Enabled bool `mapstructure:"enabled"`
}

// minRequestsPerMinute is the floor applied to RATE_LIMIT_PER_MINUTE;
// anything lower starves legitimate clients.
const minRequestsPerMinute = 30

// Load reads configuration from the given YAML paths (missing files are
// skipped) and the environment, applies defaults and the per-minute floor,
// then validates.
func Load(configPaths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("HELIX")

	setDefaults(v)
	bindLegacyEnv(v)

	for _, path := range configPaths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.RateLimit.RequestsPerMinute < minRequestsPerMinute {
		cfg.RateLimit.RequestsPerMinute = minRequestsPerMinute
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log.level", "info")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.idle_timeout", 90*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.requests_per_minute", 120)
	v.SetDefault("rate_limit.requests_per_hour", 3000)
	v.SetDefault("rate_limit.burst_size", 20)
	v.SetDefault("rate_limit.hour_tier_algorithm", "fixed_window")
	v.SetDefault("rate_limit.exempt_paths", []string{"/health", "/healthz", "/metrics"})
	v.SetDefault("rate_limit.sweep_interval", 10*time.Minute)
	v.SetDefault("rate_limit.sweep_max_idle", 2*time.Hour)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.min_wait", 500*time.Millisecond)
	v.SetDefault("retry.max_wait", 8*time.Second)

	v.SetDefault("health.check_timeout", 10*time.Second)

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("providers.openai.timeout", 60*time.Second)
	v.SetDefault("providers.anthropic.timeout", 60*time.Second)
}

// bindLegacyEnv keeps the unprefixed variable names deployments already
// use.
func bindLegacyEnv(v *viper.Viper) {
	v.BindEnv("rate_limit.requests_per_minute", "RATE_LIMIT_PER_MINUTE")
	v.BindEnv("metrics.enabled", "PROMETHEUS_METRICS_ENABLED")
	v.BindEnv("providers.openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("providers.openai.base_url", "OPENAI_BASE_URL")
	v.BindEnv("providers.anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("providers.anthropic.base_url", "ANTHROPIC_BASE_URL")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
}
