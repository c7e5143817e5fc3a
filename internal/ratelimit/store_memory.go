package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps counters in a mutex-guarded map. Counters for past
// days are dropped lazily whenever the store is touched; lookups are
// keyed by current date so stale entries are never consulted anyway.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	count    int64
	expireAt time.Time
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mu:      sync.Mutex{},
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// Incr atomically increments the counter for key and returns the new count.
func (s *MemoryStore) Incr(_ context.Context, key string, expireAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.purgeLocked(now)

	entry, ok := s.entries[key]
	if !ok {
		entry = &memoryEntry{count: 0, expireAt: expireAt}
		s.entries[key] = entry
	}

	entry.count++
	return entry.count, nil
}

// Len reports the number of live counters.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) purgeLocked(now time.Time) {
	for key, entry := range s.entries {
		if now.After(entry.expireAt) {
			delete(s.entries, key)
		}
	}
}
