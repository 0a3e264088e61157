// Package ratelimit implements fixed-window request counters keyed by an
// arbitrary string (user ID, client IP). Counters reset at fixed intervals,
// so up to 2x the ceiling may pass across a window boundary; retry-after
// values and header semantics depend on this and it must not be tightened
// to a sliding window.
package ratelimit

import (
	"sync"
	"time"
)

// Clock supplies the current time. Injectable for tests.
type Clock func() time.Time

// Result is the outcome of a single admission check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int // seconds until the window resets, set when denied
}

type window struct {
	count   int
	resetAt time.Time
}

// Store is a concurrency-safe fixed-window counter table. Each Store owns
// one scope (one limit/window pair); separate scopes get separate stores.
type Store struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	length  time.Duration
	now     Clock
	stopCh  chan struct{}
	stopOne sync.Once
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source. Used by tests.
func WithClock(clock Clock) Option {
	return func(s *Store) {
		s.now = clock
	}
}

// NewStore creates a fixed-window store admitting at most limit requests
// per key per window. A background goroutine reclaims fully-expired keys;
// call Stop to release it.
func NewStore(limit int, windowLength time.Duration, opts ...Option) *Store {
	s := &Store{
		windows: make(map[string]*window),
		limit:   limit,
		length:  windowLength,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.evictLoop()

	return s
}

// Check performs the read-check-increment sequence for key under the store
// lock, so concurrent checks for the same key serialize and the admitted
// count never exceeds the limit within a window.
func (s *Store) Check(key string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	w, ok := s.windows[key]
	if !ok || !w.resetAt.After(now) {
		// No window yet, or the stored one has expired: start fresh.
		w = &window{count: 0, resetAt: now.Add(s.length)}
		s.windows[key] = w
	}

	if w.count >= s.limit {
		return Result{
			Allowed:    false,
			Limit:      s.limit,
			Remaining:  0,
			ResetAt:    w.resetAt,
			RetryAfter: retryAfterSeconds(w.resetAt, now),
		}
	}

	w.count++
	return Result{
		Allowed:   true,
		Limit:     s.limit,
		Remaining: s.limit - w.count,
		ResetAt:   w.resetAt,
	}
}

// Remaining reports how many requests key may still make in its current
// window without consuming one.
func (s *Store) Remaining(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !w.resetAt.After(now) {
		return s.limit
	}
	remaining := s.limit - w.count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Limit returns the configured ceiling.
func (s *Store) Limit() int {
	return s.limit
}

// Stop terminates the background eviction goroutine.
func (s *Store) Stop() {
	s.stopOne.Do(func() {
		close(s.stopCh)
	})
}

// evictLoop periodically removes expired windows to bound memory. Windows
// that have not yet reset are never removed.
func (s *Store) evictLoop() {
	ticker := time.NewTicker(s.length)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}

func (s *Store) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, w := range s.windows {
		if !w.resetAt.After(now) {
			delete(s.windows, key)
		}
	}
}

func retryAfterSeconds(resetAt, now time.Time) int {
	d := resetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	seconds := int((d + time.Second - 1) / time.Second)
	return seconds
}
