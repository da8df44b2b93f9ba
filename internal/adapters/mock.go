package adapters

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MockAdapter generates deterministic synthetic bars. Used by the demo cmd
// and as a stand-in provider when no API keys are configured.
type MockAdapter struct {
	mu        sync.Mutex
	basePrice map[string]float64
	fail      error // when set, every fetch returns this error
}

// NewMockAdapter builds a mock with a few seeded symbols; unknown symbols
// get a price derived from the symbol text so runs stay reproducible.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		basePrice: map[string]float64{
			"AAPL": 185.0,
			"SPY":  450.0,
			"NVDA": 800.0,
			"MSFT": 410.0,
		},
	}
}

// SetFailure makes every subsequent fetch fail with err; pass nil to heal.
func (m *MockAdapter) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// FetchRawBars implements BarsAdapter with a deterministic random walk.
func (m *MockAdapter) FetchRawBars(_ context.Context, symbol string, tf Timeframe, start, end time.Time) ([]Bar, error) {
	m.mu.Lock()
	fail := m.fail
	base, ok := m.basePrice[NormalizeSymbol(symbol)]
	m.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	if !ok {
		base = 50.0
		for _, r := range symbol {
			base += float64(r % 13)
		}
	}
	if !tf.Valid() || !end.After(start) {
		return nil, NewBadSymbolError("mock", symbol, "invalid request range")
	}

	symbol = NormalizeSymbol(symbol)
	step := tf.Duration()
	now := time.Now().UTC()
	var bars []Bar
	for ts := start.UTC().Truncate(step); ts.Before(end); ts = ts.Add(step) {
		if tf == Timeframe1Day {
			wd := ts.Weekday()
			if wd == time.Saturday || wd == time.Sunday {
				continue
			}
		}
		// Smooth deterministic drift keyed on the bar timestamp.
		phase := float64(ts.Unix()/int64(step.Seconds())) * 0.7
		drift := math.Sin(phase) * base * 0.004
		open := base + drift
		close := base + math.Sin(phase+0.5)*base*0.004
		high := math.Max(open, close) + base*0.001
		low := math.Min(open, close) - base*0.001
		bars = append(bars, Bar{
			Symbol:     symbol,
			Timeframe:  tf,
			Open:       decimal.NewFromFloat(open).Round(4),
			High:       decimal.NewFromFloat(high).Round(4),
			Low:        decimal.NewFromFloat(low).Round(4),
			Close:      decimal.NewFromFloat(close).Round(4),
			Volume:     1_000_000 + ts.Unix()%500_000,
			Timestamp:  ts,
			Source:     "mock",
			IngestedAt: now,
		})
	}
	return bars, nil
}

func (m *MockAdapter) HealthCheck(context.Context) error { return nil }
func (m *MockAdapter) Close() error                      { return nil }
