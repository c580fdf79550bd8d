// Package cache provides an in-process key/value store with per-entry
// time-to-live expiry. Entries expire lazily on read; an optional
// Cleaner sweeps them in the background.
package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"
)

// ErrEmptyKey is returned by any operation called with an empty key.
var ErrEmptyKey = errors.New("cache: key must not be empty")

// Config controls the behavior of a Cache.
type Config struct {
	// DefaultTTL is applied to entries stored without an explicit TTL.
	// It must be positive.
	DefaultTTL time.Duration

	// Clock supplies the current time. Leave nil for the wall clock;
	// tests inject a mock to drive expiry.
	Clock clock.Clock

	// Metrics receives store/hit/miss/expiry events. Leave nil to
	// discard them.
	Metrics Metrics
}

// Cache is an in-process TTL store. All methods are safe for
// concurrent use. Instances are independent; nothing is shared
// between two caches built by New.
type Cache[V any] struct {
	mu         sync.RWMutex
	entries    map[string]entry[V]
	defaultTTL time.Duration
	clk        clock.Clock
	metrics    Metrics
	group      singleflight.Group
}

// New returns an empty Cache configured by cfg.
func New[V any](cfg Config) (*Cache[V], error) {
	if cfg.DefaultTTL <= 0 {
		return nil, fmt.Errorf("cache: default TTL must be positive, got %v", cfg.DefaultTTL)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	m := cfg.Metrics
	if m == nil {
		m = NopMetrics{}
	}
	return &Cache[V]{
		entries:    make(map[string]entry[V]),
		defaultTTL: cfg.DefaultTTL,
		clk:        clk,
		metrics:    m,
	}, nil
}

// Set stores value under key with the default TTL. Writing over an
// existing key replaces both the value and the expiry deadline.
func (c *Cache[V]) Set(key string, value V) error {
	return c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores value under key, expiring ttl from now. A
// non-positive ttl falls back to the default TTL.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.clk.Now().Add(ttl)}
	c.mu.Unlock()
	c.metrics.Store()
	return nil
}

// Get returns the live value for key. ok is false when the key is
// absent or its entry has expired; expired entries are dropped on the
// way out. A miss is not an error.
func (c *Cache[V]) Get(key string) (V, bool, error) {
	var zero V
	if key == "" {
		return zero, false, ErrEmptyKey
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.metrics.Miss()
		return zero, false, nil
	}

	if e.expired(c.clk.Now()) {
		c.mu.Lock()
		// Re-check under the write lock: a concurrent Set may have
		// refreshed the entry since the read above.
		if cur, live := c.entries[key]; live && cur.expired(c.clk.Now()) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		c.metrics.Expire(1)
		c.metrics.Miss()
		return zero, false, nil
	}

	c.metrics.Hit()
	return e.value, true, nil
}

// Delete removes key. removed reports whether an entry was present,
// expired or not. Deleting an absent key is not an error.
func (c *Cache[V]) Delete(key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	c.mu.Lock()
	_, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	return ok, nil
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry[V])
	c.mu.Unlock()
}

// Len reports how many live entries the cache holds. Expired entries
// that have not been swept yet are not counted.
func (c *Cache[V]) Len() int {
	now := c.clk.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, e := range c.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Keys returns the keys of all live entries, in no particular order.
func (c *Cache[V]) Keys() []string {
	now := c.clk.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lo.Keys(lo.OmitBy(c.entries, func(_ string, e entry[V]) bool {
		return e.expired(now)
	}))
}

// TTL returns the time remaining before key expires. ok is false when
// the key is absent or already expired.
func (c *Cache[V]) TTL(key string) (time.Duration, bool) {
	now := c.clk.Now()
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || e.expired(now) {
		return 0, false
	}
	return e.expiresAt.Sub(now), true
}

// RemoveExpired drops every expired entry and reports how many were
// removed. The Cleaner calls this on an interval; holders of large
// rarely-read caches can also call it directly.
func (c *Cache[V]) RemoveExpired() int {
	now := c.clk.Now()
	c.mu.Lock()
	removed := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()
	if removed > 0 {
		c.metrics.Expire(removed)
	}
	return removed
}
