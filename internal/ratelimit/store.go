package ratelimit

import (
	"context"
	"time"
)

// WindowStore is the shared keyed store behind the sliding-window counters
// and the cross-process block markers. This allows different backends
// (in-memory for tests and single-node deployments, Redis for clusters).
type WindowStore interface {
	// Hit records one request against key and returns the number of
	// requests in the trailing window, including this one. The
	// prune-insert-count-expire sequence must be atomic against concurrent
	// hits on the same key: two racing requests must never both observe a
	// stale count.
	Hit(ctx context.Context, key string, window time.Duration) (int, error)

	// Peek returns the current window count without recording a request.
	Peek(ctx context.Context, key string, window time.Duration) (int, error)

	// SetBlock persists a block marker for an IP with the given TTL, making
	// the block visible to every process sharing the store.
	SetBlock(ctx context.Context, ip string, ttl time.Duration) error

	// IsBlocked reports whether an unexpired block marker exists for the IP.
	IsBlocked(ctx context.Context, ip string) (bool, error)

	// DeleteBlock removes an IP's block marker.
	DeleteBlock(ctx context.Context, ip string) error
}
