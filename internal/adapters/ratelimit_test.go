package adapters

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_BurstUpToCapacity(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter("alpaca", RateLimit{Requests: 200, Window: time.Minute})
	rl.now = func() time.Time { return now }

	for i := 0; i < 200; i++ {
		require.NoError(t, rl.TryAcquire(), "acquire %d within capacity", i+1)
	}

	err := rl.TryAcquire()
	var rle *RateLimitedError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, "alpaca", rle.Provider)
	assert.Greater(t, rle.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, rle.RetryAfter, time.Minute)
}

func TestRateLimiter_RefillsContinuously(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter("polygon", RateLimit{Requests: 60, Window: time.Minute})
	rl.now = func() time.Time { return now }

	for i := 0; i < 60; i++ {
		require.NoError(t, rl.TryAcquire())
	}
	require.Error(t, rl.TryAcquire())

	// 60 req/min refills one token per second.
	now = now.Add(time.Second)
	assert.NoError(t, rl.TryAcquire())
	assert.Error(t, rl.TryAcquire())

	now = now.Add(10 * time.Second)
	for i := 0; i < 10; i++ {
		assert.NoError(t, rl.TryAcquire(), "token %d after 10s refill", i+1)
	}
	assert.Error(t, rl.TryAcquire())
}

func TestRateLimiter_RejectionDoesNotConsumeTokens(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter("yahoo", RateLimit{Requests: 5, Window: time.Minute})
	rl.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		require.NoError(t, rl.TryAcquire())
	}
	for i := 0; i < 3; i++ {
		require.Error(t, rl.TryAcquire())
	}

	// One window later the bucket must be full again; the rejected
	// reservations above must not have eaten into the refill.
	now = now.Add(time.Minute)
	for i := 0; i < 5; i++ {
		assert.NoError(t, rl.TryAcquire(), "acquire %d after full refill", i+1)
	}
}

func TestRateLimiter_TokensReporting(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter("alpaca", RateLimit{Requests: 10, Window: time.Minute})
	rl.now = func() time.Time { return now }

	assert.InDelta(t, 10.0, rl.Tokens(), 0.001)
	require.NoError(t, rl.TryAcquire())
	assert.InDelta(t, 9.0, rl.Tokens(), 0.001)
}

func TestRateLimiter_DefaultsOnZeroConfig(t *testing.T) {
	rl := NewRateLimiter("x", RateLimit{})
	assert.NoError(t, rl.TryAcquire())
}
