// Package ratelimit provides an in-memory fixed-window limiter keyed by an
// arbitrary string (the account id for the advisor). Counters are not
// persisted and reset on process restart.
package ratelimit

import (
	"sync"
	"time"

	"github.com/boddenberg/pj-finance-ledger/internal/domain"
)

type window struct {
	start time.Time
	count int
}

// FixedWindow allows at most Limit requests per key within each Window.
type FixedWindow struct {
	mu           sync.Mutex
	windows      map[string]*window
	stopCleanup  chan struct{}
	shutdownOnce sync.Once

	limit  int
	window time.Duration
	now    func() time.Time
}

// Config holds limiter configuration.
type Config struct {
	Limit           int
	Window          time.Duration
	CleanupInterval time.Duration
}

// NewFixedWindow creates a limiter and starts its cleanup goroutine.
// Call Stop on shutdown.
func NewFixedWindow(cfg Config) *FixedWindow {
	if cfg.Limit <= 0 {
		cfg.Limit = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * cfg.Window
	}

	rl := &FixedWindow{
		windows:     make(map[string]*window),
		stopCleanup: make(chan struct{}),
		limit:       cfg.Limit,
		window:      cfg.Window,
		now:         time.Now,
	}
	go rl.startCleanup(cfg.CleanupInterval)
	return rl
}

// WithClock replaces the time source. Tests only.
func (rl *FixedWindow) WithClock(now func() time.Time) *FixedWindow {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.now = now
	return rl
}

// Allow counts one request for key. It returns *domain.ErrRateLimited once
// the window's budget is spent.
func (rl *FixedWindow) Allow(key string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) >= rl.window {
		rl.windows[key] = &window{start: now, count: 1}
		return nil
	}

	if w.count >= rl.limit {
		return &domain.ErrRateLimited{Key: key, RetryAfter: w.start.Add(rl.window).Sub(now)}
	}
	w.count++
	return nil
}

// Remaining returns how many requests key may still make in its window.
func (rl *FixedWindow) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok || rl.now().Sub(w.start) >= rl.window {
		return rl.limit
	}
	return rl.limit - w.count
}

func (rl *FixedWindow) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupExpired()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupExpired drops windows that have fully elapsed.
func (rl *FixedWindow) cleanupExpired() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, w := range rl.windows {
		if now.Sub(w.start) >= rl.window {
			delete(rl.windows, key)
		}
	}
}

// ActiveKeys returns the number of tracked keys.
func (rl *FixedWindow) ActiveKeys() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// Stop shuts down the cleanup goroutine.
func (rl *FixedWindow) Stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}
