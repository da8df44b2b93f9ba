package adapters

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/SamoraDC/marketdata/internal/observ"
)

// RetryConfig parameterizes the bounded exponential backoff.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
}

// DefaultRetryConfig matches the production retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.15,
	}
}

// RetryExecutor wraps a single fallible provider call with exponential
// backoff and jitter. Only transient errors are retried; permanent errors
// (auth, bad request) fail immediately without consuming remaining attempts.
// The backoff sleep holds no locks and aborts as soon as ctx is done.
type RetryExecutor struct {
	cfg RetryConfig

	mu  sync.Mutex
	rnd *rand.Rand

	// sleep is swappable in tests to capture computed delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryExecutor creates an executor; one instance is shared across
// providers since it carries no per-provider state.
func NewRetryExecutor(cfg RetryConfig) *RetryExecutor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 2.0
	}
	if cfg.JitterFraction < 0 || cfg.JitterFraction >= 1 {
		cfg.JitterFraction = 0.15
	}
	return &RetryExecutor{
		cfg: cfg,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// Do runs op up to MaxAttempts times. It returns nil on the first success,
// the original error for permanent failures, ctx.Err if cancelled while
// backing off, and *AllAttemptsExhaustedError once the budget is spent.
func (re *RetryExecutor) Do(ctx context.Context, provider string, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; attempt <= re.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := re.sleep(ctx, re.backoff(attempt)); err != nil {
				return err
			}
			observ.IncCounter("retry_attempts_total", map[string]string{"provider": provider})
		}
		err := op(ctx)
		if err == nil {
			return nil
		}
		last = err
		if !IsTransient(err) {
			return err
		}
	}
	observ.IncCounter("retry_exhausted_total", map[string]string{"provider": provider})
	return &AllAttemptsExhaustedError{Provider: provider, Attempts: re.cfg.MaxAttempts, Last: last}
}

// backoff computes the pre-attempt delay: min(max, initial * mult^(n-2)) for
// attempt n >= 2, perturbed by a uniform factor in [1-jitter, 1+jitter].
func (re *RetryExecutor) backoff(attempt int) time.Duration {
	d := float64(re.cfg.InitialDelay) * math.Pow(re.cfg.Multiplier, float64(attempt-2))
	if capped := float64(re.cfg.MaxDelay); d > capped {
		d = capped
	}
	re.mu.Lock()
	f := 1 + re.cfg.JitterFraction*(2*re.rnd.Float64()-1)
	re.mu.Unlock()
	return time.Duration(d * f)
}
