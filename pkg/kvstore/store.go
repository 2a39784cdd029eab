// Package kvstore provides the persistent key-value storage behind the
// suggestion cache: a minimal get/set string interface with in-memory and
// SQLite-backed implementations.
package kvstore

import "sync"

// Store is the storage contract the suggestion cache depends on. GetItem
// returns false when the key is absent. Implementations may fail; callers
// are expected to degrade to "no cache" on error.
type Store interface {
	GetItem(key string) (string, bool, error)
	SetItem(key, value string) error
}

// MemoryStore is a mutex-guarded in-memory Store, the default when no
// persistent storage is configured and the natural fake for tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]string)}
}

// GetItem returns the stored value for key, if any.
func (s *MemoryStore) GetItem(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok, nil
}

// SetItem stores value under key, overwriting any prior value.
func (s *MemoryStore) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return nil
}
