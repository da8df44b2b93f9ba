package adapters

import (
	"sync"
	"time"

	"github.com/SamoraDC/marketdata/internal/observ"
)

// BreakerState represents the circuit breaker state for one provider.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// BreakerConfig holds the transition thresholds.
type BreakerConfig struct {
	FailureThreshold  int           // consecutive failures in closed before opening
	OpenTimeout       time.Duration // how long open before admitting a trial
	HalfOpenSuccesses int           // consecutive trial successes before closing
}

// DefaultBreakerConfig matches the production thresholds: 5 failures to open,
// 60s cooldown, 2 trial successes to close.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, OpenTimeout: 60 * time.Second, HalfOpenSuccesses: 2}
}

// CircuitBreaker gates calls to a single provider. The open->half-open
// transition is lazy: it happens on the next Allow after the cooldown, not on
// a background timer. In half-open exactly one trial call is admitted at a
// time. All state lives behind the per-provider mutex; breakers are never
// shared across providers.
type CircuitBreaker struct {
	mu sync.Mutex

	provider string
	cfg      BreakerConfig

	state         BreakerState
	failures      int // consecutive failures while closed
	successes     int // consecutive successes while half-open
	openedAt      time.Time
	trialInFlight bool

	now           func() time.Time
	onStateChange func(provider string, from, to BreakerState)
}

// NewCircuitBreaker creates a closed breaker for one provider. onStateChange
// may be nil; when set it is invoked outside the lock-free fast path but
// still under the breaker mutex, so keep it cheap (the manager only enqueues
// an event).
func NewCircuitBreaker(provider string, cfg BreakerConfig, onStateChange func(provider string, from, to BreakerState)) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 60 * time.Second
	}
	if cfg.HalfOpenSuccesses <= 0 {
		cfg.HalfOpenSuccesses = 2
	}
	cb := &CircuitBreaker{
		provider:      provider,
		cfg:           cfg,
		state:         BreakerClosed,
		now:           time.Now,
		onStateChange: onStateChange,
	}
	cb.emitStateGauge()
	return cb
}

// Allow reports whether a call may proceed. In half-open it reserves the
// single trial slot; callers that end up not calling the provider (e.g. the
// rate limiter rejected them) must release it via Cancel.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.OpenTimeout {
			return &CircuitOpenError{Provider: cb.provider, State: BreakerOpen}
		}
		cb.transition(BreakerHalfOpen)
		cb.successes = 0
		cb.trialInFlight = true
		return nil
	case BreakerHalfOpen:
		if cb.trialInFlight {
			return &CircuitOpenError{Provider: cb.provider, State: BreakerHalfOpen}
		}
		cb.trialInFlight = true
		return nil
	default:
		return &CircuitOpenError{Provider: cb.provider, State: cb.state}
	}
}

// Cancel releases a half-open trial slot without recording an outcome.
func (cb *CircuitBreaker) Cancel() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trialInFlight = false
}

// RecordSuccess feeds a successful provider call into the state machine.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		cb.failures = 0
	case BreakerHalfOpen:
		cb.trialInFlight = false
		cb.successes++
		if cb.successes >= cb.cfg.HalfOpenSuccesses {
			cb.transition(BreakerClosed)
			cb.failures = 0
			cb.successes = 0
		}
	}
}

// RecordFailure feeds a failed provider call (after retries) into the state
// machine.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.transition(BreakerOpen)
			cb.openedAt = cb.now()
			cb.failures = 0
			cb.successes = 0
		}
	case BreakerHalfOpen:
		cb.trialInFlight = false
		cb.successes = 0
		cb.transition(BreakerOpen)
		cb.openedAt = cb.now()
	}
}

// State returns the current state. An open breaker past its cooldown still
// reports open until the next Allow performs the lazy transition.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) transition(to BreakerState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.emitStateGauge()
	observ.IncCounter("circuit_breaker_transitions_total", map[string]string{
		"provider": cb.provider,
		"from":     string(from),
		"to":       string(to),
	})
	if cb.onStateChange != nil {
		cb.onStateChange(cb.provider, from, to)
	}
}

func (cb *CircuitBreaker) emitStateGauge() {
	v := 0.0
	switch cb.state {
	case BreakerHalfOpen:
		v = 1.0
	case BreakerOpen:
		v = 2.0
	}
	observ.SetGauge("circuit_breaker_state", v, map[string]string{"provider": cb.provider})
}
