// Package warmup pre-populates the lookup cache with configured hot
// keys at startup.
package warmup

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/stashd/warden/internal/cache"
	"github.com/stashd/warden/internal/origin"
	"github.com/stashd/warden/internal/telemetry"
)

// Result summarizes one warmup pass.
type Result struct {
	Loaded int
	Failed int
}

// Run fetches every key through the read-through path so the first
// real lookup hits a warm cache. Keys are fetched concurrently; a key
// that fails is logged and skipped, the rest still load.
func Run(ctx context.Context, keys []string, lookups *cache.Cache[[]byte], client *origin.Client, logger *slog.Logger) Result {
	if len(keys) == 0 || client == nil {
		return Result{}
	}

	ctx, span := telemetry.Tracer("warmup").Start(ctx, "warmup.Run")
	span.SetAttributes(attribute.Int("warmup.keys", len(keys)))
	defer span.End()

	g, ctx := errgroup.WithContext(ctx)
	// Keep startup from hammering the origin
	g.SetLimit(4)

	var mu sync.Mutex
	var result Result

	for _, key := range keys {
		key := key // per-iteration copy; go directive predates Go 1.22 loop scoping
		g.Go(func() error {
			_, err := lookups.GetOrLoad(ctx, key, func(ctx context.Context) ([]byte, error) {
				return client.Fetch(ctx, key)
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				logger.Warn("warm key failed", "key", key, "error", err)
				return nil
			}
			result.Loaded++
			return nil
		})
	}

	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("warmup.loaded", result.Loaded),
		attribute.Int("warmup.failed", result.Failed),
	)
	return result
}
