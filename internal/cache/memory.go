package cache

import (
	"context"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore creates a memory store. A zero TTL never expires entries.
func NewMemoryStore(cfg Config) *MemoryStore {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = gocache.NoExpiration
	}
	return &MemoryStore{cache: gocache.New(ttl, cfg.CleanupInterval)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	return b, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.cache.Set(key, append([]byte(nil), value...), gocache.DefaultExpiration)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

// Close flushes the store.
func (m *MemoryStore) Close() error {
	m.cache.Flush()
	return nil
}

// Len returns the number of live entries.
func (m *MemoryStore) Len() int {
	return m.cache.ItemCount()
}
