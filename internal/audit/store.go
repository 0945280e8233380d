package audit

import (
	"context"
	"sync"
)

// Store is an append-only sink for audit events. Implementations never
// update or delete records; the hash chain depends on it.
type Store interface {
	// Append persists one event.
	Append(ctx context.Context, e *Event) error

	// Query retrieves events matching the query in insertion order.
	// A Limit of 0 means no limit.
	Query(ctx context.Context, q Query) ([]*Event, error)

	// All retrieves every event in insertion order. Integrity verification
	// replays the chain from this sequence.
	All(ctx context.Context) ([]*Event, error)
}

// MemoryStore is an in-memory Store used for testing and development.
// Thread-safe via RWMutex.
type MemoryStore struct {
	mu     sync.RWMutex
	events []*Event
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append persists one event.
func (s *MemoryStore) Append(ctx context.Context, e *Event) error {
	cp := *e
	s.mu.Lock()
	s.events = append(s.events, &cp)
	s.mu.Unlock()
	return nil
}

// Query retrieves events matching the query in insertion order.
func (s *MemoryStore) Query(ctx context.Context, q Query) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*Event
	for _, e := range s.events {
		if !q.matches(e) {
			continue
		}
		// Copy out to prevent external modification.
		cp := *e
		results = append(results, &cp)
		if q.Limit > 0 && len(results) >= q.Limit {
			break
		}
	}
	return results, nil
}

// All retrieves every event in insertion order.
func (s *MemoryStore) All(ctx context.Context) ([]*Event, error) {
	return s.Query(ctx, Query{})
}

// Len returns the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
