package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamoraDC/marketdata/internal/adapters"
)

func makeBars(symbol string, n int) []adapters.Bar {
	ts := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]adapters.Bar, 0, n)
	for i := 0; i < n; i++ {
		bars = append(bars, adapters.Bar{
			Symbol:    symbol,
			Timeframe: adapters.Timeframe1Day,
			Open:      decimal.NewFromFloat(100),
			High:      decimal.NewFromFloat(101),
			Low:       decimal.NewFromFloat(99),
			Close:     decimal.NewFromFloat(100.5),
			Volume:    1_000_000,
			Timestamp: ts.Add(time.Duration(i) * 24 * time.Hour),
		})
	}
	return bars
}

func TestL1_PutGet(t *testing.T) {
	c := NewL1Cache(0)
	ctx := context.Background()
	bars := makeBars("AAPL", 3)

	c.Put(ctx, "AAPL:1d:abc", bars)
	got, ok := c.Get(ctx, "AAPL:1d:abc")
	require.True(t, ok)
	assert.Len(t, got, 3)

	_, ok = c.Get(ctx, "AAPL:1d:missing")
	assert.False(t, ok)
}

func TestL1_EvictsLeastRecentlyUsedUnderBudget(t *testing.T) {
	// Budget fits roughly two 10-bar entries (10*200B each), not three.
	c := NewL1Cache(4500)
	ctx := context.Background()

	c.Put(ctx, "A:1d:1", makeBars("A", 10))
	c.Put(ctx, "B:1d:1", makeBars("B", 10))
	// Touch A so B becomes the LRU victim.
	_, ok := c.Get(ctx, "A:1d:1")
	require.True(t, ok)

	c.Put(ctx, "C:1d:1", makeBars("C", 10))

	_, okA := c.Get(ctx, "A:1d:1")
	_, okB := c.Get(ctx, "B:1d:1")
	_, okC := c.Get(ctx, "C:1d:1")
	assert.True(t, okA, "recently used entry must survive")
	assert.False(t, okB, "least recently used entry must be evicted")
	assert.True(t, okC)
	assert.Equal(t, 2, c.Len())
}

func TestL1_OversizedEntryStaysAlone(t *testing.T) {
	c := NewL1Cache(100)
	ctx := context.Background()

	// A single entry over budget is kept: eviction never empties the cache
	// below one entry.
	c.Put(ctx, "A:1d:1", makeBars("A", 10))
	_, ok := c.Get(ctx, "A:1d:1")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestL1_PutReplacesAndResizes(t *testing.T) {
	c := NewL1Cache(1 << 20)
	ctx := context.Background()

	c.Put(ctx, "A:1d:1", makeBars("A", 10))
	c.Put(ctx, "A:1d:1", makeBars("A", 2))
	got, ok := c.Get(ctx, "A:1d:1")
	require.True(t, ok)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, c.Len())
}

func TestL1_DeletePrefix(t *testing.T) {
	c := NewL1Cache(1 << 20)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c.Put(ctx, fmt.Sprintf("AAPL:1d:%d", i), makeBars("AAPL", 1))
	}
	c.Put(ctx, "AAPL:1h:0", makeBars("AAPL", 1))
	c.Put(ctx, "SPY:1d:0", makeBars("SPY", 1))

	c.DeletePrefix(ctx, "AAPL:1d:")

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(ctx, "AAPL:1h:0")
	assert.True(t, ok, "other timeframes for the symbol must survive")
	_, ok = c.Get(ctx, "SPY:1d:0")
	assert.True(t, ok)
}
