package adapters

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SamoraDC/marketdata/internal/alerts"
	"github.com/SamoraDC/marketdata/internal/observ"
)

// managedProvider bundles one adapter with its owned breaker and limiter.
// Breaker and limiter are never shared across providers.
type managedProvider struct {
	desc    Descriptor
	breaker *CircuitBreaker
	limiter *RateLimiter
	health  *providerHealth
}

// Manager orders providers by priority and drives the failover loop:
// breaker gate -> token bucket -> retry executor -> adapter call. It owns all
// per-provider breaker/limiter instances; there is no ambient global state.
type Manager struct {
	providers []*managedProvider // sorted ascending by priority
	retry     *RetryExecutor
	notifier  alerts.Notifier
	logger    *logrus.Entry
}

// ManagerConfig holds the non-provider knobs.
type ManagerConfig struct {
	Breaker BreakerConfig
	Retry   RetryConfig
}

// NewManager builds a manager from descriptors. The notifier receives a
// ProviderFailoverEvent on every breaker transition; pass alerts.NopNotifier
// if nothing consumes them.
func NewManager(descs []Descriptor, cfg ManagerConfig, notifier alerts.Notifier, logger *logrus.Logger) *Manager {
	if notifier == nil {
		notifier = alerts.NopNotifier{}
	}
	m := &Manager{
		retry:    NewRetryExecutor(cfg.Retry),
		notifier: notifier,
		logger:   logger.WithField("component", "provider_manager"),
	}
	sorted := make([]Descriptor, len(descs))
	copy(sorted, descs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	for _, d := range sorted {
		d := d
		onChange := func(provider string, from, to BreakerState) {
			go m.notifier.NotifyFailover(context.Background(), alerts.ProviderFailoverEvent{
				ID:        alerts.NewID(),
				Provider:  provider,
				FromState: string(from),
				ToState:   string(to),
				At:        time.Now().UTC(),
			})
		}
		m.providers = append(m.providers, &managedProvider{
			desc:    d,
			breaker: NewCircuitBreaker(d.Name, cfg.Breaker, onChange),
			limiter: NewRateLimiter(d.Name, d.RateLimit),
			health:  newProviderHealth(d.Name),
		})
	}

	names := make([]string, 0, len(m.providers))
	for _, p := range m.providers {
		names = append(names, p.desc.Name)
	}
	m.logger.WithField("providers", names).Info("provider manager ready")
	return m
}

// FetchBars tries providers in ascending priority order. Providers whose
// breaker rejects the call or whose token bucket is empty are skipped (a
// rate-limit skip is not a breaker failure). The first success is returned
// with the provider name as provenance; if everyone fails the per-provider
// errors are aggregated into *AllProvidersFailedError.
func (m *Manager) FetchBars(ctx context.Context, symbol string, tf Timeframe, start, end time.Time) ([]Bar, string, error) {
	perProvider := make(map[string]error, len(m.providers))

	for _, p := range m.providers {
		name := p.desc.Name

		if err := p.breaker.Allow(); err != nil {
			perProvider[name] = err
			observ.IncCounter("provider_skipped_total", map[string]string{"provider": name, "reason": "circuit_open"})
			continue
		}
		if err := p.limiter.TryAcquire(); err != nil {
			// Release a half-open trial slot we are not going to use.
			p.breaker.Cancel()
			perProvider[name] = err
			observ.IncCounter("provider_skipped_total", map[string]string{"provider": name, "reason": "rate_limited"})
			continue
		}

		var bars []Bar
		started := time.Now()
		err := m.retry.Do(ctx, name, func(ctx context.Context) error {
			got, ferr := p.desc.Adapter.FetchRawBars(ctx, symbol, tf, start, end)
			if ferr != nil {
				return ferr
			}
			bars = got
			return nil
		})
		latency := time.Since(started)
		observ.IncCounter("provider_requests_total", map[string]string{"provider": name})
		observ.RecordDuration("provider_latency", latency, map[string]string{"provider": name})

		if err != nil {
			p.breaker.RecordFailure()
			p.health.recordError(err)
			perProvider[name] = err
			m.logger.WithFields(logrus.Fields{
				"provider": name,
				"symbol":   symbol,
				"error":    err.Error(),
			}).Warn("provider failed, trying next")
			observ.IncCounter("provider_errors_total", map[string]string{"provider": name})
			if ctx.Err() != nil {
				break
			}
			continue
		}

		p.breaker.RecordSuccess()
		p.health.recordSuccess(latency)
		observ.IncCounter("provider_successes_total", map[string]string{"provider": name})
		for i := range bars {
			bars[i].Source = name
			if bars[i].IngestedAt.IsZero() {
				bars[i].IngestedAt = time.Now().UTC()
			}
		}
		return bars, name, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, "", &TimeoutError{Cause: &AllProvidersFailedError{Errors: perProvider}}
	}
	return nil, "", &AllProvidersFailedError{Errors: perProvider}
}

// BreakerState exposes a provider's current circuit state, mostly for tests
// and the debug surface.
func (m *Manager) BreakerState(provider string) (BreakerState, bool) {
	for _, p := range m.providers {
		if p.desc.Name == provider {
			return p.breaker.State(), true
		}
	}
	return "", false
}

// HealthSnapshot returns a point-in-time copy of every provider's health.
func (m *Manager) HealthSnapshot() []ProviderHealthState {
	out := make([]ProviderHealthState, 0, len(m.providers))
	for _, p := range m.providers {
		s := p.health.snapshot()
		s.CircuitState = string(p.breaker.State())
		s.TokensAvailable = p.limiter.Tokens()
		out = append(out, s)
	}
	return out
}

// Close closes every adapter.
func (m *Manager) Close() error {
	var last error
	for _, p := range m.providers {
		if err := p.desc.Adapter.Close(); err != nil {
			last = err
		}
	}
	return last
}
