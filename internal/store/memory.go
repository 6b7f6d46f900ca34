package store

import (
	"context"
	"sync"
	"time"
)

// memoryEntry holds a stored value with its expiry.
type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryStore keeps short-lived auth state in process memory. A server
// restart drops all in-flight ceremonies, which is acceptable because
// ceremonies live for minutes at most.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryEntry)}
}

// Set stores a value with expiry.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]byte, len(value))
	copy(copied, value)
	s.items[key] = memoryEntry{value: copied, expires: time.Now().Add(ttl)}
	return nil
}

// Get returns a value if present and not expired.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expires) {
		delete(s.items, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Take removes and returns a value under the store lock so only one
// caller can consume it.
func (s *MemoryStore) Take(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}
	delete(s.items, key)
	if time.Now().After(entry.expires) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Delete removes a stored entry.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}
