package adapters

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter counts calls and returns a scripted result.
type fakeAdapter struct {
	calls int
	bars  []Bar
	err   error
}

func (f *fakeAdapter) FetchRawBars(_ context.Context, _ string, _ Timeframe, _, _ time.Time) ([]Bar, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.bars, nil
}

func (f *fakeAdapter) HealthCheck(context.Context) error { return nil }
func (f *fakeAdapter) Close() error                      { return nil }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testBar(symbol string, ts time.Time) Bar {
	return Bar{
		Symbol:    symbol,
		Timeframe: Timeframe1Day,
		Open:      decimal.NewFromFloat(100),
		High:      decimal.NewFromFloat(101),
		Low:       decimal.NewFromFloat(99),
		Close:     decimal.NewFromFloat(100.5),
		Volume:    1_000_000,
		Timestamp: ts,
	}
}

func newTestManager(t *testing.T, descs []Descriptor) *Manager {
	t.Helper()
	m := NewManager(descs, ManagerConfig{
		Breaker: DefaultBreakerConfig(),
		Retry:   DefaultRetryConfig(),
	}, nil, quietLogger())
	// Tests never want real backoff sleeps.
	m.retry.sleep = func(context.Context, time.Duration) error { return nil }
	return m
}

func TestManager_PrimaryServesWhenHealthy(t *testing.T) {
	ts := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	primary := &fakeAdapter{bars: []Bar{testBar("AAPL", ts)}}
	secondary := &fakeAdapter{bars: []Bar{testBar("AAPL", ts)}}
	m := newTestManager(t, []Descriptor{
		{Name: "alpaca", Priority: 0, Adapter: primary},
		{Name: "polygon", Priority: 1, Adapter: secondary},
	})

	bars, provenance, err := m.FetchBars(context.Background(), "AAPL", Timeframe1Day, ts, ts.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "alpaca", provenance)
	require.Len(t, bars, 1)
	assert.Equal(t, "alpaca", bars[0].Source)
	assert.False(t, bars[0].IngestedAt.IsZero())
	assert.Equal(t, 1, primary.calls)
	assert.Zero(t, secondary.calls, "secondary must not be touched while primary serves")
}

func TestManager_FailoverToNextPriority(t *testing.T) {
	ts := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	primary := &fakeAdapter{err: NewProviderError("alpaca", "AAPL", "upstream 503", nil)}
	secondary := &fakeAdapter{bars: []Bar{testBar("AAPL", ts)}}
	m := newTestManager(t, []Descriptor{
		{Name: "alpaca", Priority: 0, Adapter: primary},
		{Name: "polygon", Priority: 1, Adapter: secondary},
	})

	bars, provenance, err := m.FetchBars(context.Background(), "AAPL", Timeframe1Day, ts, ts.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "polygon", provenance)
	assert.Equal(t, "polygon", bars[0].Source)
	// Transient provider error burns the full retry budget first.
	assert.Equal(t, 3, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestManager_OpenBreakerSkipsProviderWithoutCalling(t *testing.T) {
	ts := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	primary := &fakeAdapter{err: NewProviderError("alpaca", "AAPL", "down", nil)}
	secondary := &fakeAdapter{bars: []Bar{testBar("AAPL", ts)}}
	m := newTestManager(t, []Descriptor{
		{Name: "alpaca", Priority: 0, Adapter: primary},
		{Name: "polygon", Priority: 1, Adapter: secondary},
	})

	// Five failed fetches open alpaca's breaker (each fetch is one breaker
	// failure after its retries).
	for i := 0; i < 5; i++ {
		_, _, err := m.FetchBars(context.Background(), "AAPL", Timeframe1Day, ts, ts.Add(24*time.Hour))
		require.NoError(t, err)
	}
	state, ok := m.BreakerState("alpaca")
	require.True(t, ok)
	require.Equal(t, BreakerOpen, state)

	callsBefore := primary.calls
	bars, provenance, err := m.FetchBars(context.Background(), "AAPL", Timeframe1Day, ts, ts.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "polygon", provenance)
	require.Len(t, bars, 1)
	assert.Equal(t, callsBefore, primary.calls, "open breaker must reject before the adapter is called")
}

func TestManager_PermanentErrorDoesNotRetry(t *testing.T) {
	ts := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	primary := &fakeAdapter{err: NewAuthError("alpaca", "invalid key")}
	secondary := &fakeAdapter{bars: []Bar{testBar("AAPL", ts)}}
	m := newTestManager(t, []Descriptor{
		{Name: "alpaca", Priority: 0, Adapter: primary},
		{Name: "polygon", Priority: 1, Adapter: secondary},
	})

	_, provenance, err := m.FetchBars(context.Background(), "AAPL", Timeframe1Day, ts, ts.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "polygon", provenance)
	assert.Equal(t, 1, primary.calls)
}

func TestManager_RateLimitSkipIsNotABreakerFailure(t *testing.T) {
	ts := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	primary := &fakeAdapter{bars: []Bar{testBar("AAPL", ts)}}
	secondary := &fakeAdapter{bars: []Bar{testBar("AAPL", ts)}}
	m := newTestManager(t, []Descriptor{
		{Name: "alpaca", Priority: 0, RateLimit: RateLimit{Requests: 2, Window: time.Hour}, Adapter: primary},
		{Name: "polygon", Priority: 1, Adapter: secondary},
	})

	for i := 0; i < 2; i++ {
		_, provenance, err := m.FetchBars(context.Background(), "AAPL", Timeframe1Day, ts, ts.Add(24*time.Hour))
		require.NoError(t, err)
		require.Equal(t, "alpaca", provenance)
	}

	// Bucket drained: the manager falls through to polygon many times over,
	// and alpaca's breaker must stay closed throughout.
	for i := 0; i < 10; i++ {
		_, provenance, err := m.FetchBars(context.Background(), "AAPL", Timeframe1Day, ts, ts.Add(24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, "polygon", provenance)
	}
	state, _ := m.BreakerState("alpaca")
	assert.Equal(t, BreakerClosed, state)
	assert.Equal(t, 2, primary.calls)
}

func TestManager_AllProvidersFailedAggregatesErrors(t *testing.T) {
	ts := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	m := newTestManager(t, []Descriptor{
		{Name: "alpaca", Priority: 0, Adapter: &fakeAdapter{err: NewProviderError("alpaca", "AAPL", "down", nil)}},
		{Name: "polygon", Priority: 1, Adapter: &fakeAdapter{err: NewAuthError("polygon", "invalid key")}},
	})

	_, _, err := m.FetchBars(context.Background(), "AAPL", Timeframe1Day, ts, ts.Add(24*time.Hour))
	var apf *AllProvidersFailedError
	require.ErrorAs(t, err, &apf)
	require.Len(t, apf.Errors, 2)

	var exhausted *AllAttemptsExhaustedError
	assert.ErrorAs(t, apf.Errors["alpaca"], &exhausted)
	var fe *FetchError
	require.ErrorAs(t, apf.Errors["polygon"], &fe)
	assert.Equal(t, KindAuth, fe.Kind)
}

func TestManager_DeadlineSurfacesAsTimeout(t *testing.T) {
	ts := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	m := newTestManager(t, []Descriptor{
		{Name: "alpaca", Priority: 0, Adapter: &fakeAdapter{err: NewProviderError("alpaca", "AAPL", "slow", nil)}},
	})

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, _, err := m.FetchBars(ctx, "AAPL", Timeframe1Day, ts, ts.Add(24*time.Hour))
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
}

func TestManager_ProvidersSortedByPriority(t *testing.T) {
	ts := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	first := &fakeAdapter{bars: []Bar{testBar("AAPL", ts)}}
	second := &fakeAdapter{bars: []Bar{testBar("AAPL", ts)}}
	// Descriptors intentionally out of order.
	m := newTestManager(t, []Descriptor{
		{Name: "yahoo", Priority: 2, Adapter: second},
		{Name: "alpaca", Priority: 0, Adapter: first},
	})

	_, provenance, err := m.FetchBars(context.Background(), "AAPL", Timeframe1Day, ts, ts.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "alpaca", provenance)
}

func TestManager_HealthSnapshot(t *testing.T) {
	ts := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	m := newTestManager(t, []Descriptor{
		{Name: "alpaca", Priority: 0, Adapter: &fakeAdapter{bars: []Bar{testBar("AAPL", ts)}}},
	})

	_, _, err := m.FetchBars(context.Background(), "AAPL", Timeframe1Day, ts, ts.Add(24*time.Hour))
	require.NoError(t, err)

	snap := m.HealthSnapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "alpaca", snap[0].Provider)
	assert.Equal(t, int64(1), snap[0].TotalRequests)
	assert.Zero(t, snap[0].TotalErrors)
	assert.Equal(t, string(BreakerClosed), snap[0].CircuitState)
}
