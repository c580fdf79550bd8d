// Package ratelimit provides a fixed-window request limiter keyed by
// an opaque caller identifier.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stashd/warden/internal/cache"
)

// Config controls a Limiter.
type Config struct {
	// MaxRequests is the number of requests admitted per window. It
	// must be positive.
	MaxRequests int

	// Window is the length of the fixed window. It must be positive.
	Window time.Duration

	// Clock supplies the current time. Leave nil for the wall clock;
	// tests inject a mock to drive window turnover.
	Clock clock.Clock
}

// window tracks one identifier's admitted requests inside its
// current fixed window.
type window struct {
	count int
	start time.Time
}

// Limiter admits up to MaxRequests per identifier per fixed window.
// The first request from an identifier opens its window; once the
// window length has passed, the next request opens a fresh one.
// Counting is atomic: concurrent calls cannot admit more requests
// than the limit. Instances are independent.
//
// A fixed window admits up to twice the limit across one window
// boundary in the worst case. That is inherent to the algorithm, not
// a counting bug.
type Limiter struct {
	mu      sync.Mutex
	windows *cache.Cache[window]
	max     int
	length  time.Duration
	clk     clock.Clock
}

// NewLimiter returns a Limiter configured by cfg.
func NewLimiter(cfg Config) (*Limiter, error) {
	if cfg.MaxRequests <= 0 {
		return nil, fmt.Errorf("ratelimit: max requests must be positive, got %d", cfg.MaxRequests)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("ratelimit: window must be positive, got %v", cfg.Window)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	// Window state lives in a private cache whose entry TTL equals
	// the window length, so identifiers that go quiet age out without
	// a dedicated sweeper.
	windows, err := cache.New[window](cache.Config{DefaultTTL: cfg.Window, Clock: clk})
	if err != nil {
		return nil, err
	}

	return &Limiter{
		windows: windows,
		max:     cfg.MaxRequests,
		length:  cfg.Window,
		clk:     clk,
	}, nil
}

// Allow reports whether one more request from id fits its current
// window, counting the request when it does. A rejected request is
// not counted and does not lengthen the window.
func (l *Limiter) Allow(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now()
	w, ok, err := l.windows.Get(id)
	if err != nil {
		// Only an empty identifier lands here. Admit rather than
		// lock out callers the middleware failed to identify.
		return true
	}

	if !ok || now.Sub(w.start) >= l.length {
		l.put(id, window{count: 1, start: now})
		return true
	}

	if w.count >= l.max {
		return false
	}

	w.count++
	l.put(id, w)
	return true
}

// Status reports id's current window without counting a request.
func (l *Limiter) Status(id string) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now()
	w, ok, err := l.windows.Get(id)
	if err != nil || !ok || now.Sub(w.start) >= l.length {
		return Status{Limit: l.max, Remaining: l.max, ResetAt: now}
	}
	return Status{
		Count:     w.count,
		Limit:     l.max,
		Remaining: l.max - w.count,
		ResetAt:   w.start.Add(l.length),
	}
}

// Size reports how many identifiers currently hold a live window.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.windows.Len()
}

// RemoveExpired drops windows whose identifiers have gone idle,
// reporting how many were dropped. Allow does not depend on this
// running; it only reclaims memory.
func (l *Limiter) RemoveExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.windows.RemoveExpired()
}

func (l *Limiter) put(id string, w window) {
	// The cache rejects only empty keys, which Get screened out.
	_ = l.windows.SetWithTTL(id, w, l.length)
}

// Status is a point-in-time view of one identifier's window, shaped
// for X-RateLimit response headers.
type Status struct {
	// Count is the number of admitted requests in the current window.
	Count int

	// Limit echoes the configured per-window maximum.
	Limit int

	// Remaining is how many more requests the window will admit.
	Remaining int

	// ResetAt is when the current window ends. For an identifier with
	// no live window it reports the present, meaning a fresh window
	// starts with the next request.
	ResetAt time.Time
}
