package cachestore

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore provides an in-memory implementation of the Store interface.
// It is thread-safe and suitable for development, testing, and cache-disabled
// deployments. It does not survive restarts; use RedisStore for durability.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	// Index for efficient client-based lookups
	clientIndex map[string][]string // clientID -> []sessionID
}

// NewMemoryStore creates a new in-memory cache store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:     make(map[string]*Entry),
		clientIndex: make(map[string][]string),
	}
}

// Put upserts an entry keyed by its session id. Stores a deep copy to prevent
// external mutations.
func (s *MemoryStore) Put(_ context.Context, entry *Entry) error {
	if entry == nil || entry.SessionID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.SessionID] = copyEntry(entry)

	if entry.ClientID != "" {
		s.updateClientIndex(entry.ClientID, entry.SessionID)
	}

	return nil
}

// Get retrieves an entry by session id. Returns a deep copy.
func (s *MemoryStore) Get(_ context.Context, sessionID string) (*Entry, error) {
	if sessionID == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.entries[sessionID]
	if !exists {
		return nil, ErrNotFound
	}
	return copyEntry(entry), nil
}

// List returns deep copies of all entries for a client.
func (s *MemoryStore) List(_ context.Context, clientID string) ([]*Entry, error) {
	if clientID == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.clientIndex[clientID]
	out := make([]*Entry, 0, len(ids))
	for _, id := range ids {
		if entry, ok := s.entries[id]; ok {
			out = append(out, copyEntry(entry))
		}
	}
	return out, nil
}

// Delete removes an entry by session id.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[sessionID]
	if !exists {
		return ErrNotFound
	}

	if entry.ClientID != "" {
		s.removeFromClientIndex(entry.ClientID, sessionID)
	}
	delete(s.entries, sessionID)

	return nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// ScanAll returns deep copies of every entry.
func (s *MemoryStore) ScanAll(_ context.Context) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, copyEntry(entry))
	}
	return out, nil
}

// updateClientIndex adds a session ID to the client's index.
// Must be called with mutex locked.
func (s *MemoryStore) updateClientIndex(clientID, sessionID string) {
	for _, id := range s.clientIndex[clientID] {
		if id == sessionID {
			return
		}
	}
	s.clientIndex[clientID] = append(s.clientIndex[clientID], sessionID)
}

// removeFromClientIndex removes a session ID from the client's index.
// Must be called with mutex locked.
func (s *MemoryStore) removeFromClientIndex(clientID, sessionID string) {
	ids := s.clientIndex[clientID]
	filtered := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != sessionID {
			filtered = append(filtered, id)
		}
	}
	if len(filtered) == 0 {
		delete(s.clientIndex, clientID)
	} else {
		s.clientIndex[clientID] = filtered
	}
}

// copyEntry creates a deep copy of an entry.
func copyEntry(entry *Entry) *Entry {
	c := *entry
	if entry.Snapshot != nil {
		c.Snapshot = make(json.RawMessage, len(entry.Snapshot))
		copy(c.Snapshot, entry.Snapshot)
	}
	if entry.SummaryVector != nil {
		c.SummaryVector = make([]float32, len(entry.SummaryVector))
		copy(c.SummaryVector, entry.SummaryVector)
	}
	return &c
}

// compile-time check that MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
