package cache

import (
	"context"

	"github.com/SamoraDC/marketdata/internal/adapters"
)

// Tier is one in-process or near cache level. Implementations log their own
// backend errors and report a miss rather than failing the read path.
type Tier interface {
	Name() string
	Get(ctx context.Context, key string) ([]adapters.Bar, bool)
	Put(ctx context.Context, key string, bars []adapters.Bar)
	// DeletePrefix removes every key with the given prefix (invalidation).
	DeletePrefix(ctx context.Context, prefix string)
	Len() int
}
