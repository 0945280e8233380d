package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryWindowStore is an in-memory WindowStore for tests and single-node
// deployments. Thread-safe; atomicity of Hit follows from the mutex.
type MemoryWindowStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	blocks  map[string]time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewMemoryWindowStore creates an empty in-memory window store.
func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{
		windows: make(map[string][]time.Time),
		blocks:  make(map[string]time.Time),
		now:     time.Now,
	}
}

// Hit records one request and returns the trailing-window count.
func (s *MemoryWindowStore) Hit(ctx context.Context, key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	kept := pruneBefore(s.windows[key], now.Add(-window))
	kept = append(kept, now)
	s.windows[key] = kept
	return len(kept), nil
}

// Peek returns the trailing-window count without recording a request.
func (s *MemoryWindowStore) Peek(ctx context.Context, key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	count := 0
	for _, ts := range s.windows[key] {
		if ts.After(now.Add(-window)) {
			count++
		}
	}
	return count, nil
}

// SetBlock records a block marker expiring after ttl.
func (s *MemoryWindowStore) SetBlock(ctx context.Context, ip string, ttl time.Duration) error {
	s.mu.Lock()
	s.blocks[ip] = s.now().Add(ttl)
	s.mu.Unlock()
	return nil
}

// IsBlocked reports whether an unexpired block marker exists.
func (s *MemoryWindowStore) IsBlocked(ctx context.Context, ip string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.blocks[ip]
	if !ok {
		return false, nil
	}
	if s.now().After(expiry) {
		delete(s.blocks, ip)
		return false, nil
	}
	return true, nil
}

// DeleteBlock removes a block marker.
func (s *MemoryWindowStore) DeleteBlock(ctx context.Context, ip string) error {
	s.mu.Lock()
	delete(s.blocks, ip)
	s.mu.Unlock()
	return nil
}

// Cleanup drops empty windows so long-idle keys do not leak memory.
func (s *MemoryWindowStore) Cleanup(maxWindow time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxWindow)
	for key, stamps := range s.windows {
		kept := pruneBefore(stamps, cutoff)
		if len(kept) == 0 {
			delete(s.windows, key)
			continue
		}
		s.windows[key] = kept
	}
}

// pruneBefore drops timestamps at or before the cutoff. Stamps are appended
// in order, so the first retained index bounds the rest.
func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}
