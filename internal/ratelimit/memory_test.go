package ratelimit

import (
	"context"
	"testing"
	"time"
)

// fakeClock drives a MemoryWindowStore deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func clockedStore() (*MemoryWindowStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryWindowStore()
	store.now = clock.now
	return store, clock
}

func TestMemoryWindowStoreHit(t *testing.T) {
	store, clock := clockedStore()
	ctx := context.Background()
	window := time.Minute

	for want := 1; want <= 3; want++ {
		got, err := store.Hit(ctx, "k", window)
		if err != nil {
			t.Fatalf("Hit() error = %v", err)
		}
		if got != want {
			t.Errorf("Hit() = %d, want %d", got, want)
		}
	}

	// Old entries slide out of the window.
	clock.advance(window + time.Second)
	got, err := store.Hit(ctx, "k", window)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("Hit() after window = %d, want 1", got)
	}
}

func TestMemoryWindowStorePartialSlide(t *testing.T) {
	store, clock := clockedStore()
	ctx := context.Background()
	window := time.Minute

	_, _ = store.Hit(ctx, "k", window) // t=0
	clock.advance(40 * time.Second)
	_, _ = store.Hit(ctx, "k", window) // t=40s
	clock.advance(30 * time.Second)

	// t=70s: the first hit is outside the window, the second inside.
	got, err := store.Hit(ctx, "k", window)
	if err != nil {
		t.Fatal(err)
	}
	if got != 2 {
		t.Errorf("Hit() = %d, want 2", got)
	}
}

func TestMemoryWindowStorePeekDoesNotCount(t *testing.T) {
	store, _ := clockedStore()
	ctx := context.Background()
	window := time.Minute

	_, _ = store.Hit(ctx, "k", window)
	_, _ = store.Hit(ctx, "k", window)

	for i := 0; i < 5; i++ {
		got, err := store.Peek(ctx, "k", window)
		if err != nil {
			t.Fatal(err)
		}
		if got != 2 {
			t.Errorf("Peek() = %d, want 2", got)
		}
	}

	got, _ := store.Hit(ctx, "k", window)
	if got != 3 {
		t.Errorf("Hit() after peeks = %d, want 3", got)
	}
}

func TestMemoryWindowStoreKeysIndependent(t *testing.T) {
	store, _ := clockedStore()
	ctx := context.Background()

	_, _ = store.Hit(ctx, "a", time.Minute)
	_, _ = store.Hit(ctx, "a", time.Minute)
	got, _ := store.Hit(ctx, "b", time.Minute)
	if got != 1 {
		t.Errorf("keys not independent: Hit(b) = %d", got)
	}
}

func TestMemoryWindowStoreBlocks(t *testing.T) {
	store, clock := clockedStore()
	ctx := context.Background()

	blocked, err := store.IsBlocked(ctx, "10.0.0.1")
	if err != nil || blocked {
		t.Errorf("IsBlocked() = %v, %v before block", blocked, err)
	}

	if err := store.SetBlock(ctx, "10.0.0.1", time.Hour); err != nil {
		t.Fatal(err)
	}
	if blocked, _ := store.IsBlocked(ctx, "10.0.0.1"); !blocked {
		t.Error("IsBlocked() = false after SetBlock")
	}

	clock.advance(time.Hour + time.Second)
	if blocked, _ := store.IsBlocked(ctx, "10.0.0.1"); blocked {
		t.Error("IsBlocked() = true after TTL expiry")
	}
}

func TestMemoryWindowStoreDeleteBlock(t *testing.T) {
	store, _ := clockedStore()
	ctx := context.Background()

	_ = store.SetBlock(ctx, "10.0.0.2", time.Hour)
	if err := store.DeleteBlock(ctx, "10.0.0.2"); err != nil {
		t.Fatal(err)
	}
	if blocked, _ := store.IsBlocked(ctx, "10.0.0.2"); blocked {
		t.Error("IsBlocked() = true after DeleteBlock")
	}
}

func TestMemoryWindowStoreCleanup(t *testing.T) {
	store, clock := clockedStore()
	ctx := context.Background()

	_, _ = store.Hit(ctx, "stale", time.Minute)
	clock.advance(time.Hour)
	_, _ = store.Hit(ctx, "fresh", time.Minute)

	store.Cleanup(time.Minute)

	store.mu.Lock()
	_, staleKept := store.windows["stale"]
	_, freshKept := store.windows["fresh"]
	store.mu.Unlock()

	if staleKept {
		t.Error("stale window not evicted")
	}
	if !freshKept {
		t.Error("fresh window evicted")
	}
}
