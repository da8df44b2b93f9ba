package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/SamoraDC/marketdata/internal/adapters"
	"github.com/SamoraDC/marketdata/internal/observ"
)

// L2Cache is the TTL-bounded middle tier. Entries expire by TTL only; an
// expired entry is treated as a miss and evicted on read. Cleanup sweeps the
// whole map and is meant to run on a timer from the serve loop.
type L2Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]l2entry
	now     func() time.Time
}

type l2entry struct {
	bars      []adapters.Bar
	expiresAt time.Time
}

// NewL2Cache creates the tier with the given TTL (default 15 minutes).
func NewL2Cache(ttl time.Duration) *L2Cache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &L2Cache{
		ttl:     ttl,
		entries: make(map[string]l2entry),
		now:     time.Now,
	}
}

func (c *L2Cache) Name() string { return "l2" }

func (c *L2Cache) Get(_ context.Context, key string) ([]adapters.Bar, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; another reader may have refreshed it.
		if cur, ok := c.entries[key]; ok && c.now().After(cur.expiresAt) {
			delete(c.entries, key)
			observ.IncCounter("cache_evictions_total", map[string]string{"tier": "l2"})
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.bars, true
}

func (c *L2Cache) Put(_ context.Context, key string, bars []adapters.Bar) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = l2entry{bars: bars, expiresAt: c.now().Add(c.ttl)}
}

func (c *L2Cache) DeletePrefix(_ context.Context, prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// Cleanup drops every expired entry and returns how many were removed.
func (c *L2Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		observ.IncCounterBy("cache_evictions_total", map[string]string{"tier": "l2"}, int64(removed))
	}
	return removed
}

func (c *L2Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
