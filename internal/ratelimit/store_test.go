package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, limit int, window time.Duration) (*Store, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store := NewStore(limit, window, WithClock(clock.Now))
	t.Cleanup(store.Stop)
	return store, clock
}

func TestCheckAllowsUpToLimit(t *testing.T) {
	store, _ := newTestStore(t, 50, time.Hour)

	for i := 1; i <= 50; i++ {
		result := store.Check("user-1")
		if !result.Allowed {
			t.Fatalf("request %d: expected allowed", i)
		}
		if result.Remaining != 50-i {
			t.Errorf("request %d: remaining = %d, want %d", i, result.Remaining, 50-i)
		}
	}

	// The 51st request within the window is denied.
	result := store.Check("user-1")
	if result.Allowed {
		t.Fatal("51st request: expected denied")
	}
	if result.Remaining != 0 {
		t.Errorf("denied remaining = %d, want 0", result.Remaining)
	}
	if result.RetryAfter <= 0 {
		t.Errorf("denied retry-after = %d, want > 0", result.RetryAfter)
	}
}

func TestWindowResetAllowsAgain(t *testing.T) {
	store, clock := newTestStore(t, 50, time.Hour)

	for i := 0; i < 50; i++ {
		store.Check("user-1")
	}
	if store.Check("user-1").Allowed {
		t.Fatal("expected denial at the ceiling")
	}

	clock.Advance(time.Hour)

	result := store.Check("user-1")
	if !result.Allowed {
		t.Fatal("expected first request after reset to be allowed")
	}
	if result.Remaining != 49 {
		t.Errorf("remaining after reset = %d, want 49", result.Remaining)
	}
	if !result.ResetAt.After(clock.Now()) {
		t.Error("fresh window reset time should be in the future")
	}
}

func TestRetryAfterRoundsUp(t *testing.T) {
	store, clock := newTestStore(t, 1, time.Hour)

	store.Check("user-1")
	clock.Advance(59*time.Minute + 59*time.Second + 500*time.Millisecond)

	result := store.Check("user-1")
	if result.Allowed {
		t.Fatal("expected denial inside the window")
	}
	// 500ms left rounds up to a full second.
	if result.RetryAfter != 1 {
		t.Errorf("retry-after = %d, want 1", result.RetryAfter)
	}
}

func TestKeysAreIsolated(t *testing.T) {
	store, _ := newTestStore(t, 2, time.Hour)

	store.Check("user-1")
	store.Check("user-1")
	if store.Check("user-1").Allowed {
		t.Fatal("user-1 should be at the ceiling")
	}

	result := store.Check("user-2")
	if !result.Allowed {
		t.Fatal("user-2 must not observe user-1's counter")
	}
	if result.Remaining != 1 {
		t.Errorf("user-2 remaining = %d, want 1", result.Remaining)
	}
}

func TestFixedWindowBoundaryTolerance(t *testing.T) {
	// Fixed windows permit up to 2C across a boundary. This behavior is
	// load-bearing for retry-after and header semantics.
	store, clock := newTestStore(t, 10, time.Minute)

	for i := 0; i < 10; i++ {
		if !store.Check("user-1").Allowed {
			t.Fatalf("request %d before boundary should be allowed", i+1)
		}
	}
	clock.Advance(time.Minute)
	for i := 0; i < 10; i++ {
		if !store.Check("user-1").Allowed {
			t.Fatalf("request %d after boundary should be allowed", i+1)
		}
	}
	if store.Check("user-1").Allowed {
		t.Fatal("request 21 should be denied")
	}
}

func TestConcurrentChecksNeverExceedLimit(t *testing.T) {
	const limit = 50
	const attempts = 200

	store, _ := newTestStore(t, limit, time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Check("user-1").Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != limit {
		t.Errorf("admitted = %d, want exactly %d", admitted, limit)
	}
}

func TestEvictExpiredKeepsLiveWindows(t *testing.T) {
	store, clock := newTestStore(t, 5, time.Minute)

	store.Check("stale")
	clock.Advance(2 * time.Minute)
	store.Check("live")

	store.evictExpired()

	store.mu.Lock()
	_, staleExists := store.windows["stale"]
	_, liveExists := store.windows["live"]
	store.mu.Unlock()

	if staleExists {
		t.Error("expired window should have been evicted")
	}
	if !liveExists {
		t.Error("live window must never be evicted")
	}
}

func TestRemainingDoesNotConsume(t *testing.T) {
	store, _ := newTestStore(t, 3, time.Hour)

	if got := store.Remaining("user-1"); got != 3 {
		t.Errorf("fresh key remaining = %d, want 3", got)
	}
	store.Check("user-1")
	if got := store.Remaining("user-1"); got != 2 {
		t.Errorf("remaining = %d, want 2", got)
	}
	if got := store.Remaining("user-1"); got != 2 {
		t.Errorf("remaining must not consume, got %d", got)
	}
}

func TestAdmissionsPerWindowProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 20).Draw(t, "limit")
		window := time.Duration(rapid.IntRange(1, 3600).Draw(t, "windowSeconds")) * time.Second
		keys := rapid.IntRange(1, 4).Draw(t, "keys")
		steps := rapid.IntRange(1, 200).Draw(t, "steps")

		clock := newFakeClock()
		store := NewStore(limit, window, WithClock(clock.Now))
		defer store.Stop()

		// admitted counts per key for the key's current window
		admitted := make(map[string]int)
		windowEnds := make(map[string]time.Time)

		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(t, fmt.Sprintf("advance-%d", i)) {
				clock.Advance(time.Duration(rapid.IntRange(1, int(window/time.Second)+1).Draw(t, fmt.Sprintf("by-%d", i))) * time.Second)
			}

			key := fmt.Sprintf("key-%d", rapid.IntRange(0, keys-1).Draw(t, fmt.Sprintf("key-%d", i)))
			now := clock.Now()
			if end, ok := windowEnds[key]; !ok || !end.After(now) {
				admitted[key] = 0
				windowEnds[key] = now.Add(window)
			}

			result := store.Check(key)
			if result.Allowed {
				admitted[key]++
			}

			// Within any single window, admissions never exceed the limit.
			if admitted[key] > limit {
				t.Fatalf("key %s admitted %d in one window, limit %d", key, admitted[key], limit)
			}
			// A request under the ceiling for the model window is allowed.
			if !result.Allowed && admitted[key] < limit {
				t.Fatalf("key %s denied with %d/%d admitted", key, admitted[key], limit)
			}
		}
	})
}
