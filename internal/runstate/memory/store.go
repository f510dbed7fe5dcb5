// Package memory provides an in-memory state store for development/testing.
package memory

import (
	"context"
	"sync"
)

// Store is a map-backed single-slot state store.
type Store struct {
	mu    sync.RWMutex
	slots map[string]string
}

// NewStore constructs a Store.
func NewStore() *Store {
	return &Store{slots: make(map[string]string)}
}

// Get returns the stored value and whether the key exists.
func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.slots[key]
	return value, ok, nil
}

// Set overwrites the slot for key.
func (s *Store) Set(_ context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[key] = value
	return nil
}

// Remove deletes the slot for key. Removing a missing key is not an error.
func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, key)
	return nil
}
