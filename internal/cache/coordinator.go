package cache

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/SamoraDC/marketdata/internal/adapters"
	"github.com/SamoraDC/marketdata/internal/observ"
	"github.com/SamoraDC/marketdata/internal/storage"
)

// Coordinator runs the L1 -> L2 -> L3 read path with full promotion: any hit
// at a slower tier is copied into every faster tier before it is returned.
// Promotion copies; the upstream tier keeps its entry. Writes go through all
// tiers. L3 retention is the storage collaborator's problem.
type Coordinator struct {
	tiers  []Tier // fastest first: [l1, l2]
	store  storage.Store
	logger *logrus.Entry
}

// NewCoordinator assembles the tiers; store may be nil when no L3
// collaborator is wired (the read path then stops at L2).
func NewCoordinator(l1, l2 Tier, store storage.Store, logger *logrus.Logger) *Coordinator {
	return &Coordinator{
		tiers:  []Tier{l1, l2},
		store:  store,
		logger: logger.WithField("component", "cache"),
	}
}

// GetBars probes tiers in order and promotes on hit. The returned string
// names the tier that answered ("l1", "l2" or "l3").
func (c *Coordinator) GetBars(ctx context.Context, key Key) ([]adapters.Bar, string, bool) {
	ks := key.String()

	for i, tier := range c.tiers {
		if bars, ok := tier.Get(ctx, ks); ok {
			observ.IncCounter("cache_hits_total", map[string]string{"tier": tier.Name()})
			c.promote(ctx, ks, bars, i)
			return bars, tier.Name(), true
		}
		observ.IncCounter("cache_tier_misses_total", map[string]string{"tier": tier.Name()})
	}

	if c.store != nil {
		bars, found, err := c.store.Get(ctx, ks)
		if err != nil {
			c.logger.WithFields(logrus.Fields{"key": ks, "error": err.Error()}).
				Warn("l3 read failed, treating as miss")
		} else if found {
			observ.IncCounter("cache_hits_total", map[string]string{"tier": "l3"})
			c.promote(ctx, ks, bars, len(c.tiers))
			return bars, "l3", true
		}
	}

	observ.IncCounter("cache_misses_total", nil)
	return nil, "", false
}

// promote copies bars into every tier faster than the one that hit.
func (c *Coordinator) promote(ctx context.Context, key string, bars []adapters.Bar, hitIdx int) {
	for i := 0; i < hitIdx; i++ {
		c.tiers[i].Put(ctx, key, bars)
		observ.IncCounter("cache_promotions_total", map[string]string{"tier": c.tiers[i].Name()})
	}
}

// Put writes through every tier and the L3 store.
func (c *Coordinator) Put(ctx context.Context, key Key, bars []adapters.Bar) {
	ks := key.String()
	for _, tier := range c.tiers {
		tier.Put(ctx, ks, bars)
	}
	if c.store != nil {
		if err := c.store.Put(ctx, ks, bars); err != nil {
			c.logger.WithFields(logrus.Fields{"key": ks, "error": err.Error()}).
				Warn("l3 write failed")
		}
	}
}

// Invalidate removes every cached range for symbol+timeframe from L1 and L2.
// L3 invalidation is the storage collaborator's responsibility, not ours.
func (c *Coordinator) Invalidate(ctx context.Context, symbol string, tf adapters.Timeframe) {
	prefix := KeyPrefix(symbol, tf)
	for _, tier := range c.tiers {
		tier.DeletePrefix(ctx, prefix)
	}
	observ.IncCounter("cache_invalidations_total", map[string]string{"symbol": adapters.NormalizeSymbol(symbol)})
	c.logger.WithFields(logrus.Fields{"symbol": symbol, "timeframe": string(tf)}).
		Info("cache invalidated")
}
