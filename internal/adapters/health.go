package adapters

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ProviderHealthState is a point-in-time health snapshot for one provider,
// served on the debug API.
type ProviderHealthState struct {
	Provider        string    `json:"provider"`
	CircuitState    string    `json:"circuit_state"`
	TokensAvailable float64   `json:"tokens_available"`
	LastSuccess     time.Time `json:"last_success,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	LastErrorAt     time.Time `json:"last_error_at,omitempty"`
	TotalRequests   int64     `json:"total_requests"`
	TotalErrors     int64     `json:"total_errors"`
	ConsecutiveErrs int       `json:"consecutive_errors"`
	LatencyLastMs   int64     `json:"latency_last_ms"`
}

// providerHealth tracks reliability counters for one provider. The circuit
// breaker owns availability decisions; this is bookkeeping for operators.
type providerHealth struct {
	mu sync.Mutex

	provider        string
	lastSuccess     time.Time
	lastError       string
	lastErrorAt     time.Time
	totalRequests   int64
	totalErrors     int64
	consecutiveErrs int
	latencyLast     time.Duration
}

func newProviderHealth(provider string) *providerHealth {
	return &providerHealth{provider: provider}
}

func (ph *providerHealth) recordSuccess(latency time.Duration) {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	ph.totalRequests++
	ph.consecutiveErrs = 0
	ph.lastSuccess = time.Now().UTC()
	ph.latencyLast = latency
}

func (ph *providerHealth) recordError(err error) {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	ph.totalRequests++
	ph.totalErrors++
	ph.consecutiveErrs++
	ph.lastError = err.Error()
	ph.lastErrorAt = time.Now().UTC()
}

func (ph *providerHealth) snapshot() ProviderHealthState {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	return ProviderHealthState{
		Provider:        ph.provider,
		LastSuccess:     ph.lastSuccess,
		LastError:       ph.lastError,
		LastErrorAt:     ph.lastErrorAt,
		TotalRequests:   ph.totalRequests,
		TotalErrors:     ph.totalErrors,
		ConsecutiveErrs: ph.consecutiveErrs,
		LatencyLastMs:   ph.latencyLast.Milliseconds(),
	}
}

// HealthMonitor periodically probes providers through the normal FetchBars
// path so an open breaker gets its half-open trials even when no caller
// traffic arrives. It reuses the manager's selection loop rather than
// introducing a second circuit-breaker code path.
type HealthMonitor struct {
	manager  *Manager
	symbol   string
	interval time.Duration
	timeout  time.Duration
	logger   *logrus.Entry

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHealthMonitor probes with a trivial daily-bar request for symbol.
func NewHealthMonitor(manager *Manager, symbol string, interval time.Duration, logger *logrus.Logger) *HealthMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &HealthMonitor{
		manager:  manager,
		symbol:   symbol,
		interval: interval,
		timeout:  10 * time.Second,
		logger:   logger.WithField("component", "health_monitor"),
	}
}

// Start launches the probe loop; Stop terminates it and waits for exit.
func (hm *HealthMonitor) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	hm.cancel = cancel
	hm.done = make(chan struct{})

	go func() {
		defer close(hm.done)
		ticker := time.NewTicker(hm.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				hm.probe(ctx)
			}
		}
	}()
	hm.logger.WithField("interval", hm.interval.String()).Info("health monitor started")
}

func (hm *HealthMonitor) Stop() {
	if hm.cancel != nil {
		hm.cancel()
		<-hm.done
	}
}

func (hm *HealthMonitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, hm.timeout)
	defer cancel()
	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.Add(-5 * 24 * time.Hour)
	_, provider, err := hm.manager.FetchBars(probeCtx, hm.symbol, Timeframe1Day, start, end)
	if err != nil {
		hm.logger.WithField("error", err.Error()).Debug("health probe failed")
		return
	}
	hm.logger.WithField("provider", provider).Debug("health probe ok")
}
