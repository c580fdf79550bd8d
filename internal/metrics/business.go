package metrics

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	meter = otel.Meter("warden/service")

	// Cache metrics
	CacheRequestsTotal    metric.Int64Counter
	CacheWritesTotal      metric.Int64Counter
	CacheExpirationsTotal metric.Int64Counter

	// Rate limit metrics
	RateLimitDecisionsTotal metric.Int64Counter

	// Origin metrics
	OriginFetchesTotal  metric.Int64Counter
	OriginFetchDuration metric.Float64Histogram
)

func Init() error {
	var err error

	// Cache metrics
	CacheRequestsTotal, err = meter.Int64Counter(
		"cache.requests.total",
		metric.WithDescription("Cache reads partitioned by result"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	CacheWritesTotal, err = meter.Int64Counter(
		"cache.writes.total",
		metric.WithDescription("Values stored into the cache"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	CacheExpirationsTotal, err = meter.Int64Counter(
		"cache.expirations.total",
		metric.WithDescription("Entries dropped because their TTL passed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	// Rate limit metrics
	RateLimitDecisionsTotal, err = meter.Int64Counter(
		"ratelimit.decisions.total",
		metric.WithDescription("Rate limiter outcomes partitioned by decision"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	// Origin metrics
	OriginFetchesTotal, err = meter.Int64Counter(
		"origin.fetches.total",
		metric.WithDescription("Read-through fetches against the origin"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	OriginFetchDuration, err = meter.Float64Histogram(
		"origin.fetch.duration",
		metric.WithDescription("Duration of origin fetches"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10),
	)
	if err != nil {
		return err
	}

	return nil
}

// Collector feeds cache events into the OTel counters while keeping
// local tallies, so the admin surface can answer with a snapshot
// without scraping the metrics backend. One collector per cache
// instance; name tells them apart.
type Collector struct {
	name string

	hits    atomic.Int64
	misses  atomic.Int64
	expired atomic.Int64
	stores  atomic.Int64
}

// NewCollector returns a Collector tagging every event with the given
// cache name. Call Init first so the package counters exist.
func NewCollector(name string) *Collector {
	return &Collector{name: name}
}

func (c *Collector) Hit() {
	c.hits.Add(1)
	CacheRequestsTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("cache", c.name), attribute.String("result", "hit")))
}

func (c *Collector) Miss() {
	c.misses.Add(1)
	CacheRequestsTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("cache", c.name), attribute.String("result", "miss")))
}

func (c *Collector) Expire(n int) {
	c.expired.Add(int64(n))
	CacheExpirationsTotal.Add(context.Background(), int64(n),
		metric.WithAttributes(attribute.String("cache", c.name)))
}

func (c *Collector) Store() {
	c.stores.Add(1)
	CacheWritesTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("cache", c.name)))
}

// Snapshot is a point-in-time view of one collector's tallies.
type Snapshot struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Expired int64 `json:"expired"`
	Stores  int64 `json:"stores"`
}

func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Expired: c.expired.Load(),
		Stores:  c.stores.Load(),
	}
}

// RecordRateLimitDecision counts one limiter outcome.
func RecordRateLimitDecision(ctx context.Context, allowed bool) {
	decision := "allowed"
	if !allowed {
		decision = "rejected"
	}
	RateLimitDecisionsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("decision", decision)))
}

// RecordOriginFetch counts one origin fetch and its duration.
func RecordOriginFetch(ctx context.Context, seconds float64, success bool) {
	OriginFetchesTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("success", success)))
	OriginFetchDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.Bool("success", success)))
}
