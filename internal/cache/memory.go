package cache

import (
	"context"
	"sync"
	"time"

	"github.com/brightpath/llmgate/internal/domain"
)

// MemoryStore keeps cached responses in a mutex-guarded map. Expired
// entries are dropped lazily on lookup.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	data     []byte
	expireAt time.Time
}

// NewMemoryStore creates an empty in-memory cache store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mu:      sync.Mutex{},
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// Get retrieves the entry for key, or domain.ErrCacheMiss.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	if s.now().After(entry.expireAt) {
		delete(s.entries, key)
		return nil, domain.ErrCacheMiss
	}

	return entry.data, nil
}

// Set stores data under key with the given TTL.
func (s *MemoryStore) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &memoryEntry{
		data:     data,
		expireAt: s.now().Add(ttl),
	}
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
