package adapters

import (
	"context"
	"time"
)

// BarsAdapter is the uniform capability every vendor implements. Adapters
// must classify failures via *FetchError so the manager can tell transient
// from permanent, and must honor ctx cancellation on every network call.
type BarsAdapter interface {
	FetchRawBars(ctx context.Context, symbol string, tf Timeframe, start, end time.Time) ([]Bar, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// RateLimit is the configured admission budget for one provider.
type RateLimit struct {
	Requests int           // tokens per window, also the burst capacity
	Window   time.Duration // refill window
}

// Descriptor binds a vendor adapter to its priority and rate limit.
// Immutable after configuration load; lower priority is tried first.
type Descriptor struct {
	Name      string
	Priority  int
	RateLimit RateLimit
	Adapter   BarsAdapter
}
