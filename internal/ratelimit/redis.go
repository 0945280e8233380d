package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Key prefixes in the shared store.
const (
	windowKeyPrefix = "ratelimit:win:"
	blockKeyPrefix  = "ratelimit:blocked:"
)

// hitScript is the atomic prune-insert-count-expire sequence. Running it as
// a single server-side script prevents two concurrent requests on the same
// key from both observing a stale count and both being admitted.
//
// KEYS[1] window key; ARGV[1] now (ms); ARGV[2] window (ms); ARGV[3] member.
var hitScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, tonumber(ARGV[1]) - tonumber(ARGV[2]))
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[3])
local count = redis.call('ZCARD', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return count
`)

// RedisWindowStore implements WindowStore on Redis sorted sets. Each window
// key holds one member per request, scored by arrival time in milliseconds,
// with the key's TTL pinned to the window length.
type RedisWindowStore struct {
	client *redis.Client
}

// NewRedisWindowStore creates a Redis-backed window store.
func NewRedisWindowStore(client *redis.Client) *RedisWindowStore {
	return &RedisWindowStore{client: client}
}

// Hit records one request and returns the trailing-window count.
func (s *RedisWindowStore) Hit(ctx context.Context, key string, window time.Duration) (int, error) {
	now := time.Now().UnixMilli()
	// Members must be unique even when two requests land in the same
	// millisecond, so the score alone cannot serve as the member.
	member := strconv.FormatInt(now, 10) + "-" + uuid.New().String()

	count, err := hitScript.Run(ctx, s.client,
		[]string{windowKeyPrefix + key},
		now, window.Milliseconds(), member,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("rate limit hit script failed: %w", err)
	}
	return count, nil
}

// Peek returns the trailing-window count without inserting a member or
// touching the key's expiry.
func (s *RedisWindowStore) Peek(ctx context.Context, key string, window time.Duration) (int, error) {
	cutoff := time.Now().Add(-window).UnixMilli()
	count, err := s.client.ZCount(ctx, windowKeyPrefix+key,
		"("+strconv.FormatInt(cutoff, 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("rate limit peek failed: %w", err)
	}
	return int(count), nil
}

// SetBlock persists a block marker with the given TTL.
func (s *RedisWindowStore) SetBlock(ctx context.Context, ip string, ttl time.Duration) error {
	if err := s.client.Set(ctx, blockKeyPrefix+ip, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to set block marker: %w", err)
	}
	return nil
}

// IsBlocked reports whether an unexpired block marker exists; expiry is
// handled server-side by the key TTL.
func (s *RedisWindowStore) IsBlocked(ctx context.Context, ip string) (bool, error) {
	n, err := s.client.Exists(ctx, blockKeyPrefix+ip).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check block marker: %w", err)
	}
	return n > 0, nil
}

// DeleteBlock removes a block marker.
func (s *RedisWindowStore) DeleteBlock(ctx context.Context, ip string) error {
	if err := s.client.Del(ctx, blockKeyPrefix+ip).Err(); err != nil {
		return fmt.Errorf("failed to delete block marker: %w", err)
	}
	return nil
}
