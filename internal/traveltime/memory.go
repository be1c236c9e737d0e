package traveltime

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps entries in process. Expired items are swept every ten minutes.
type MemoryStore struct {
	mu    sync.Mutex
	items *gocache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: gocache.New(gocache.NoExpiration, 10*time.Minute)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	v, ok := m.items.Get(key)
	if !ok {
		return Entry{}, false, nil
	}
	return v.(Entry), true, nil
}

func (m *MemoryStore) PutIfNewer(_ context.Context, key string, e Entry, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.items.Get(key); ok && v.(Entry).ComputedAt.After(e.ComputedAt) {
		return false, nil
	}
	m.items.Set(key, e, ttl)
	return true, nil
}
