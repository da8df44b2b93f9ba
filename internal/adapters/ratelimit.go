package adapters

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/SamoraDC/marketdata/internal/observ"
)

// RateLimiter is a per-provider token bucket: capacity = requests per window,
// refilled continuously at capacity/window tokens per second. One limiter per
// provider; the bucket lock lives inside rate.Limiter, so there is no global
// lock across providers.
type RateLimiter struct {
	provider string
	lim      *rate.Limiter
	window   time.Duration
	now      func() time.Time
}

// NewRateLimiter builds a full bucket for one provider.
func NewRateLimiter(provider string, cfg RateLimit) *RateLimiter {
	if cfg.Requests <= 0 {
		cfg.Requests = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &RateLimiter{
		provider: provider,
		lim:      rate.NewLimiter(rate.Limit(float64(cfg.Requests)/cfg.Window.Seconds()), cfg.Requests),
		window:   cfg.Window,
		now:      time.Now,
	}
}

// TryAcquire consumes one token if available. When the bucket is empty it
// returns *RateLimitedError carrying how long until the next token refills;
// it never blocks.
func (rl *RateLimiter) TryAcquire() error {
	now := rl.now()
	r := rl.lim.ReserveN(now, 1)
	if !r.OK() {
		return &RateLimitedError{Provider: rl.provider, RetryAfter: rl.window}
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		observ.IncCounter("rate_limited_total", map[string]string{"provider": rl.provider})
		return &RateLimitedError{Provider: rl.provider, RetryAfter: delay}
	}
	return nil
}

// Tokens reports the currently available tokens, for the debug surface.
func (rl *RateLimiter) Tokens() float64 {
	return rl.lim.TokensAt(rl.now())
}
