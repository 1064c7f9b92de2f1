package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/Sternrassler/querygen/pkg/product"
	"github.com/Sternrassler/querygen/pkg/query"
)

const backendMemory = "memory"

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[product.Fingerprint]*CacheEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[product.Fingerprint]*CacheEntry),
	}
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, fp product.Fingerprint) (*CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	entry, ok := m.entries[fp]
	m.mu.RUnlock()

	if !ok {
		CacheMisses.WithLabelValues(backendMemory).Inc()
		return nil, ErrCacheMiss
	}
	CacheHits.WithLabelValues(backendMemory).Inc()
	return clone(entry), nil
}

// PutIfAbsentOrNewer implements Store.
func (m *MemoryStore) PutIfAbsentOrNewer(ctx context.Context, entry *CacheEntry) (bool, *CacheEntry, error) {
	if entry == nil {
		return false, nil, fmt.Errorf("cache entry cannot be nil")
	}
	if err := entry.Validate(); err != nil {
		CacheErrors.WithLabelValues(backendMemory, "put").Inc()
		return false, nil, err
	}
	if err := ctx.Err(); err != nil {
		return false, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.entries[entry.Fingerprint]
	if !Supersedes(existing, entry) {
		CacheWrites.WithLabelValues(backendMemory, WriteLost).Inc()
		return false, clone(existing), nil
	}

	m.entries[entry.Fingerprint] = clone(entry)
	CacheWrites.WithLabelValues(backendMemory, WriteStored).Inc()
	return true, clone(entry), nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, fp product.Fingerprint) error {
	m.mu.Lock()
	delete(m.entries, fp)
	m.mu.Unlock()
	return nil
}

// Ping implements Store.
func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func clone(e *CacheEntry) *CacheEntry {
	if e == nil {
		return nil
	}
	out := *e
	out.Queries = append([]query.GeneratedQuery(nil), e.Queries...)
	return &out
}
