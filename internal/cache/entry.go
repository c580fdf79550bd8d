package cache

import "time"

// entry pairs a stored value with its absolute expiry deadline.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// expired reports whether the deadline has passed. An entry read
// exactly at its deadline is already gone.
func (e entry[V]) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}
