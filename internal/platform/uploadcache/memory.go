package uploadcache

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for tests and local development. It does
// not survive restarts; production deployments use the Firestore store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]string)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, sourceURL string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fileID, ok := s.entries[cacheKey(sourceURL)]
	return fileID, ok, nil
}

// Put implements Store. Last writer wins on racing misses.
func (s *MemoryStore) Put(_ context.Context, sourceURL, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[cacheKey(sourceURL)] = fileID
	return nil
}

// Len reports the number of cached entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
