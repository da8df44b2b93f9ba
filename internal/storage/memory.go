package storage

import (
	"context"
	"strings"
	"sync"

	"github.com/SamoraDC/marketdata/internal/adapters"
)

// MemoryStore is an in-process Store used by the demo cmd and tests. The
// real deployment swaps in the external durable engine's client.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]adapters.Bar
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]adapters.Bar)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]adapters.Bar, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	bars, ok := s.entries[key]
	return bars, ok, nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, bars []adapters.Bar) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = bars
	return nil
}

func (s *MemoryStore) Invalidate(ctx context.Context, keyPrefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		if strings.HasPrefix(key, keyPrefix) {
			delete(s.entries, key)
		}
	}
	return nil
}

// Len reports the stored entry count, for tests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
