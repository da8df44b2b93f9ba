package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SamoraDC/marketdata/internal/adapters"
	"github.com/SamoraDC/marketdata/internal/alerts"
	"github.com/SamoraDC/marketdata/internal/cache"
	"github.com/SamoraDC/marketdata/internal/config"
	"github.com/SamoraDC/marketdata/internal/service"
	"github.com/SamoraDC/marketdata/internal/storage"
	"github.com/SamoraDC/marketdata/internal/validate"
)

// pipeline bundles the assembled components so commands can tear them down.
type pipeline struct {
	service *service.MarketData
	manager *adapters.Manager
	l2      cache.Tier
	monitor *adapters.HealthMonitor
}

// buildAdapter instantiates one vendor adapter by name. Providers without
// credentials fall back to the mock so a keyless checkout still runs.
func buildAdapter(p config.Provider, secrets config.Secrets, logger *logrus.Logger) (adapters.BarsAdapter, error) {
	switch p.Name {
	case "alpaca":
		if secrets.AlpacaKeyID == "" {
			logger.WithField("provider", p.Name).Warn("no credentials, using mock adapter")
			return adapters.NewMockAdapter(), nil
		}
		return adapters.NewAlpacaAdapter(adapters.AlpacaConfig{
			KeyID:          secrets.AlpacaKeyID,
			SecretKey:      secrets.AlpacaSecretKey,
			BaseURL:        p.BaseURL,
			TimeoutSeconds: p.TimeoutSeconds,
		})
	case "polygon":
		if secrets.PolygonAPIKey == "" {
			logger.WithField("provider", p.Name).Warn("no credentials, using mock adapter")
			return adapters.NewMockAdapter(), nil
		}
		return adapters.NewPolygonAdapter(adapters.PolygonConfig{
			APIKey:         secrets.PolygonAPIKey,
			BaseURL:        p.BaseURL,
			TimeoutSeconds: p.TimeoutSeconds,
		})
	case "yahoo":
		return adapters.NewYahooAdapter(adapters.YahooConfig{
			BaseURL:        p.BaseURL,
			TimeoutSeconds: p.TimeoutSeconds,
		}), nil
	case "mock":
		return adapters.NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", p.Name)
	}
}

// buildPipeline assembles the full service from config.
func buildPipeline(ctx context.Context, cfg config.Root, logger *logrus.Logger) (*pipeline, error) {
	descs := make([]adapters.Descriptor, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		adapter, err := buildAdapter(p, cfg.Secrets, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s adapter: %w", p.Name, err)
		}
		descs = append(descs, adapters.Descriptor{
			Name:     p.Name,
			Priority: p.Priority,
			RateLimit: adapters.RateLimit{
				Requests: p.RateLimitRequests,
				Window:   time.Duration(p.RateLimitSeconds) * time.Second,
			},
			Adapter: adapter,
		})
	}

	notifier := alerts.NewLogNotifier(logger)
	manager := adapters.NewManager(descs, adapters.ManagerConfig{
		Breaker: adapters.BreakerConfig{
			FailureThreshold:  cfg.Breaker.FailureThreshold,
			OpenTimeout:       time.Duration(cfg.Breaker.OpenSeconds) * time.Second,
			HalfOpenSuccesses: cfg.Breaker.HalfOpenSuccesses,
		},
		Retry: adapters.RetryConfig{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialDelay:   time.Duration(cfg.Retry.InitialDelayMs) * time.Millisecond,
			MaxDelay:       time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
			Multiplier:     cfg.Retry.Multiplier,
			JitterFraction: cfg.Retry.JitterFraction,
		},
	}, notifier, logger)

	l1 := cache.NewL1Cache(int64(cfg.Cache.L1BudgetMB) << 20)
	var l2 cache.Tier
	switch cfg.Cache.L2Backend {
	case "redis":
		redisTier, err := cache.NewRedisTier(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
		}, cfg.Cache.L2TTL(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect redis l2: %w", err)
		}
		l2 = redisTier
	case "memory":
		l2 = cache.NewL2Cache(cfg.Cache.L2TTL())
	default:
		return nil, fmt.Errorf("unknown l2 backend %q", cfg.Cache.L2Backend)
	}

	// The demo wiring uses the in-memory store; production swaps in the
	// durable engine's client here.
	coord := cache.NewCoordinator(l1, l2, storage.NewMemoryStore(), logger)

	validator := validate.NewValidator(validate.Config{
		MaxFutureSkew:      time.Duration(cfg.Validation.MaxFutureSkewSecs) * time.Second,
		VolumeZThreshold:   cfg.Validation.VolumeZThreshold,
		ZScoreThreshold:    cfg.Validation.ZScoreThreshold,
		GapThreshold:       cfg.Validation.GapThresholdPct / 100,
		MinBaselineSamples: int64(cfg.Validation.MinBaselineSamples),
		PricePrecision:     int32(cfg.Validation.PricePrecision),
		SLALatency:         time.Duration(cfg.Validation.SLASeconds) * time.Second,
		PassThreshold:      cfg.Validation.QualityPassThreshold,
		Weights: validate.QualityWeights{
			Accuracy:     cfg.Validation.WeightAccuracy,
			Completeness: cfg.Validation.WeightCompleteness,
			Timeliness:   cfg.Validation.WeightTimeliness,
			Consistency:  cfg.Validation.WeightConsistency,
		},
	}, logger)

	p := &pipeline{
		service: service.New(coord, manager, validator, notifier, logger),
		manager: manager,
		l2:      l2,
	}
	if cfg.Health.Enabled {
		p.monitor = adapters.NewHealthMonitor(manager, cfg.Health.ProbeSymbol,
			time.Duration(cfg.Health.IntervalSeconds)*time.Second, logger)
		p.monitor.Start(ctx)
	}
	return p, nil
}

func (p *pipeline) close() {
	if p.monitor != nil {
		p.monitor.Stop()
	}
	_ = p.manager.Close()
	if closer, ok := p.l2.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}
