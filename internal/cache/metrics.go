package cache

// Metrics receives cache events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	// Hit records a Get that returned a live value.
	Hit()
	// Miss records a Get that found nothing to return.
	Miss()
	// Expire records n entries dropped because their TTL had passed.
	Expire(n int)
	// Store records a successful Set.
	Store()
}

// NopMetrics discards every event.
type NopMetrics struct{}

func (NopMetrics) Hit()       {}
func (NopMetrics) Miss()      {}
func (NopMetrics) Expire(int) {}
func (NopMetrics) Store()     {}
