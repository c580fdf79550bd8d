package cache

import (
	"context"
	"time"
)

// Loader fetches the value for a key that is not in the cache.
type Loader[V any] func(ctx context.Context) (V, error)

// GetOrLoad returns the cached value for key, or runs load to fetch,
// store and return it with the default TTL. Concurrent calls for the
// same key share a single load; every waiter receives the same result.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load Loader[V]) (V, error) {
	return c.GetOrLoadTTL(ctx, key, c.defaultTTL, load)
}

// GetOrLoadTTL is GetOrLoad with an explicit TTL for the loaded value.
// A load error is returned to every waiter and nothing is stored.
func (c *Cache[V]) GetOrLoadTTL(ctx context.Context, key string, ttl time.Duration, load Loader[V]) (V, error) {
	var zero V
	if key == "" {
		return zero, ErrEmptyKey
	}
	if v, ok, err := c.Get(key); err != nil {
		return zero, err
	} else if ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Another caller may have finished loading while this one
		// waited to join the flight.
		if cached, ok, err := c.Get(key); err != nil {
			return nil, err
		} else if ok {
			return cached, nil
		}
		loaded, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.SetWithTTL(key, loaded, ttl); err != nil {
			return nil, err
		}
		return loaded, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(V), nil
}
