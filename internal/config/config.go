package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Provider configures one vendor adapter slot. Lower priority is tried
// first. API keys come from the environment, never from the yaml file.
type Provider struct {
	Name     string `yaml:"name"`
	Priority int    `yaml:"priority"`
	BaseURL  string `yaml:"base_url,omitempty"`

	RateLimitRequests int `yaml:"rate_limit_requests"`
	RateLimitSeconds  int `yaml:"rate_limit_window_seconds"`
	TimeoutSeconds    int `yaml:"timeout_seconds"`
}

type Secrets struct {
	AlpacaKeyID     string `env:"ALPACA_KEY_ID"`
	AlpacaSecretKey string `env:"ALPACA_SECRET_KEY"`
	PolygonAPIKey   string `env:"POLYGON_API_KEY"`
}

type Breaker struct {
	FailureThreshold  int `yaml:"failure_threshold"`
	OpenSeconds       int `yaml:"open_seconds"`
	HalfOpenSuccesses int `yaml:"half_open_successes"`
}

type Retry struct {
	MaxAttempts    int     `yaml:"max_attempts"`
	InitialDelayMs int     `yaml:"initial_delay_ms"`
	MaxDelayMs     int     `yaml:"max_delay_ms"`
	Multiplier     float64 `yaml:"multiplier"`
	JitterFraction float64 `yaml:"jitter_fraction"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type Cache struct {
	L1BudgetMB   int    `yaml:"l1_budget_mb"`
	L2TTLSeconds int    `yaml:"l2_ttl_seconds"`
	L2Backend    string `yaml:"l2_backend"` // memory | redis
	Redis        Redis  `yaml:"redis" env:", prefix=CACHE_"`
}

type Validation struct {
	ZScoreThreshold    float64 `yaml:"zscore_threshold"`
	GapThresholdPct    float64 `yaml:"gap_threshold_pct"`
	VolumeZThreshold   float64 `yaml:"volume_zscore_threshold"`
	MinBaselineSamples int     `yaml:"min_baseline_samples"`
	PricePrecision     int     `yaml:"price_precision"`
	SLASeconds         int     `yaml:"sla_seconds"`
	MaxFutureSkewSecs  int     `yaml:"max_future_skew_seconds"`

	QualityPassThreshold float64 `yaml:"quality_pass_threshold"`
	WeightAccuracy       float64 `yaml:"weight_accuracy"`
	WeightCompleteness   float64 `yaml:"weight_completeness"`
	WeightTimeliness     float64 `yaml:"weight_timeliness"`
	WeightConsistency    float64 `yaml:"weight_consistency"`
}

type Health struct {
	Enabled         bool   `yaml:"enabled"`
	ProbeSymbol     string `yaml:"probe_symbol"`
	IntervalSeconds int    `yaml:"interval_seconds"`
}

type Logging struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"` // json | text
}

type Server struct {
	DebugAddr string `yaml:"debug_addr" env:"DEBUG_ADDR"`
}

type Root struct {
	Providers  []Provider `yaml:"providers"`
	Breaker    Breaker    `yaml:"circuit_breaker"`
	Retry      Retry      `yaml:"retry"`
	Cache      Cache      `yaml:"cache"`
	Validation Validation `yaml:"validation"`
	Health     Health     `yaml:"health"`
	Logging    Logging    `yaml:"logging"`
	Server     Server     `yaml:"server"`
	Secrets    Secrets    `yaml:"-"`
}

// Load reads the yaml file, applies defaults, then overlays environment
// variables (secrets are env-only).
func Load(ctx context.Context, path string) (Root, error) {
	var c Root
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	c.applyDefaults()
	if err := envconfig.Process(ctx, &c); err != nil {
		return c, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := envconfig.Process(ctx, &c.Secrets); err != nil {
		return c, fmt.Errorf("failed to read secrets: %w", err)
	}
	return c, nil
}

func (c *Root) applyDefaults() {
	if len(c.Providers) == 0 {
		c.Providers = []Provider{
			{Name: "alpaca", Priority: 0, RateLimitRequests: 200, RateLimitSeconds: 60},
			{Name: "polygon", Priority: 1, RateLimitRequests: 100, RateLimitSeconds: 60},
			{Name: "yahoo", Priority: 2, RateLimitRequests: 2000, RateLimitSeconds: 60},
		}
	}
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.RateLimitRequests == 0 {
			p.RateLimitRequests = 60
		}
		if p.RateLimitSeconds == 0 {
			p.RateLimitSeconds = 60
		}
		if p.TimeoutSeconds == 0 {
			p.TimeoutSeconds = 10
		}
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.OpenSeconds == 0 {
		c.Breaker.OpenSeconds = 60
	}
	if c.Breaker.HalfOpenSuccesses == 0 {
		c.Breaker.HalfOpenSuccesses = 2
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.InitialDelayMs == 0 {
		c.Retry.InitialDelayMs = 100
	}
	if c.Retry.MaxDelayMs == 0 {
		c.Retry.MaxDelayMs = 30000
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = 2.0
	}
	if c.Retry.JitterFraction == 0 {
		c.Retry.JitterFraction = 0.15
	}
	if c.Cache.L1BudgetMB == 0 {
		c.Cache.L1BudgetMB = 100
	}
	if c.Cache.L2TTLSeconds == 0 {
		c.Cache.L2TTLSeconds = 900
	}
	if c.Cache.L2Backend == "" {
		c.Cache.L2Backend = "memory"
	}
	if c.Cache.Redis.Addr == "" {
		c.Cache.Redis.Addr = "localhost:6379"
	}
	if c.Validation.ZScoreThreshold == 0 {
		c.Validation.ZScoreThreshold = 4.0
	}
	if c.Validation.GapThresholdPct == 0 {
		c.Validation.GapThresholdPct = 10.0
	}
	if c.Validation.VolumeZThreshold == 0 {
		c.Validation.VolumeZThreshold = 4.0
	}
	if c.Validation.MinBaselineSamples == 0 {
		c.Validation.MinBaselineSamples = 20
	}
	if c.Validation.PricePrecision == 0 {
		c.Validation.PricePrecision = 4
	}
	if c.Validation.MaxFutureSkewSecs == 0 {
		c.Validation.MaxFutureSkewSecs = 300
	}
	if c.Validation.QualityPassThreshold == 0 {
		c.Validation.QualityPassThreshold = 0.95
	}
	if c.Validation.WeightAccuracy == 0 {
		c.Validation.WeightAccuracy = 0.4
	}
	if c.Validation.WeightCompleteness == 0 {
		c.Validation.WeightCompleteness = 0.3
	}
	if c.Validation.WeightTimeliness == 0 {
		c.Validation.WeightTimeliness = 0.2
	}
	if c.Validation.WeightConsistency == 0 {
		c.Validation.WeightConsistency = 0.1
	}
	if c.Health.ProbeSymbol == "" {
		c.Health.ProbeSymbol = "SPY"
	}
	if c.Health.IntervalSeconds == 0 {
		c.Health.IntervalSeconds = 60
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Server.DebugAddr == "" {
		c.Server.DebugAddr = ":8080"
	}
}

// L2TTL is a convenience accessor.
func (c Cache) L2TTL() time.Duration {
	return time.Duration(c.L2TTLSeconds) * time.Second
}
