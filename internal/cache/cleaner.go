package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

// Sweepable is the part of a cache the cleaner drives, kept as an
// interface so the cleaner does not care about the value type.
type Sweepable interface {
	RemoveExpired() int
}

// Cleaner sweeps expired entries on an interval so that keys which
// are never read again do not pin memory. Without one, expired
// entries linger until the next Get or RemoveExpired touches them.
type Cleaner struct {
	store    Sweepable
	interval time.Duration
	logger   *slog.Logger
	clk      clock.Clock
}

// NewCleaner returns a Cleaner sweeping store every interval. A nil
// clk means the wall clock.
func NewCleaner(store Sweepable, interval time.Duration, logger *slog.Logger, clk clock.Clock) *Cleaner {
	if clk == nil {
		clk = clock.New()
	}
	return &Cleaner{
		store:    store,
		interval: interval,
		logger:   logger,
		clk:      clk,
	}
}

// Start blocks running the sweep loop until ctx is cancelled. Run it
// in its own goroutine.
func (c *Cleaner) Start(ctx context.Context) {
	ticker := c.clk.Ticker(c.interval)
	defer ticker.Stop()

	c.logger.Info("cache cleaner running", "interval", c.interval.String())
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("cache cleaner stopped")
			return
		case <-ticker.C:
			if removed := c.store.RemoveExpired(); removed > 0 {
				c.logger.Debug("swept expired entries", "removed", removed)
			}
		}
	}
}
