// Package validation holds request-level checks applied before a
// value touches a cache.
package validation

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// MaxKeyLength bounds cache keys in bytes.
const MaxKeyLength = 256

// Key reports why key is unusable as a cache key, or nil.
func Key(key string) error {
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("key longer than %d bytes", MaxKeyLength)
	}
	if !utf8.ValidString(key) {
		return fmt.Errorf("key is not valid UTF-8")
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return fmt.Errorf("key contains control characters")
		}
	}
	return nil
}

// TTLMillis validates a TTL taken from a request body. Zero means
// the caller wants the default; negative values are rejected rather
// than silently reinterpreted.
func TTLMillis(ttl int64) error {
	if ttl < 0 {
		return fmt.Errorf("ttl_ms must not be negative, got %d", ttl)
	}
	return nil
}
