package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"

	"github.com/SamoraDC/marketdata/internal/adapters"
	"github.com/SamoraDC/marketdata/internal/observ"
)

// barApproxBytes is the rough in-memory footprint of one Bar (struct fields
// plus decimal backing). Only used to bound L1 by an approximate budget.
const barApproxBytes = 200

// L1Cache is the fastest tier: an LRU bounded by an approximate memory
// budget. Entries carry no TTL; they leave only by eviction or explicit
// invalidation. A single RW mutex guards the map+list, which is fine at this
// tier's entry counts.
type L1Cache struct {
	mu      sync.Mutex
	budget  int64
	used    int64
	ll      *list.List // front = most recently used
	entries map[string]*list.Element
}

type l1entry struct {
	key  string
	bars []adapters.Bar
	size int64
}

// NewL1Cache creates an LRU with the given byte budget (default 100MB).
func NewL1Cache(budgetBytes int64) *L1Cache {
	if budgetBytes <= 0 {
		budgetBytes = 100 << 20
	}
	return &L1Cache{
		budget:  budgetBytes,
		ll:      list.New(),
		entries: make(map[string]*list.Element),
	}
}

func (c *L1Cache) Name() string { return "l1" }

func (c *L1Cache) Get(_ context.Context, key string) ([]adapters.Bar, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*l1entry).bars, true
}

func (c *L1Cache) Put(_ context.Context, key string, bars []adapters.Bar) {
	size := int64(len(bars))*barApproxBytes + int64(len(key))
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*l1entry)
		c.used += size - e.size
		e.bars, e.size = bars, size
		c.ll.MoveToFront(el)
	} else {
		c.entries[key] = c.ll.PushFront(&l1entry{key: key, bars: bars, size: size})
		c.used += size
	}

	for c.used > c.budget && c.ll.Len() > 1 {
		c.evictOldestLocked()
	}
	observ.SetGauge("cache_bytes", float64(c.used), map[string]string{"tier": "l1"})
}

func (c *L1Cache) evictOldestLocked() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	e := el.Value.(*l1entry)
	c.ll.Remove(el)
	delete(c.entries, e.key)
	c.used -= e.size
	observ.IncCounter("cache_evictions_total", map[string]string{"tier": "l1"})
}

func (c *L1Cache) DeletePrefix(_ context.Context, prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, el := range c.entries {
		if strings.HasPrefix(key, prefix) {
			e := el.Value.(*l1entry)
			c.ll.Remove(el)
			delete(c.entries, key)
			c.used -= e.size
		}
	}
}

func (c *L1Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
