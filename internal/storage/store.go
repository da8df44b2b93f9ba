// Package storage defines the L3 collaborator boundary. The durable engine
// (partitioning, retention, compaction) lives outside this repo; the cache
// coordinator only issues get/put/invalidate calls through this interface.
package storage

import (
	"context"

	"github.com/SamoraDC/marketdata/internal/adapters"
)

// Store is the persistent tier consumed by the cache coordinator. Every call
// takes a context because the backing engine may be remote; on deadline
// expiry the caller abandons the call.
type Store interface {
	Get(ctx context.Context, key string) ([]adapters.Bar, bool, error)
	Put(ctx context.Context, key string, bars []adapters.Bar) error
	Invalidate(ctx context.Context, keyPrefix string) error
}
