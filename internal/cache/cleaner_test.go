package cache

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCleanerSweepsExpiredEntries(t *testing.T) {
	mock := clock.NewMock()
	c, err := New[string](Config{DefaultTTL: time.Second, Clock: mock})
	require.NoError(t, err)

	require.NoError(t, c.Set("a", "v"))
	require.NoError(t, c.Set("b", "v"))

	cleaner := NewCleaner(c, 5*time.Second, discardLogger(), mock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cleaner.Start(ctx)

	// Let the loop install its ticker before advancing the clock.
	time.Sleep(20 * time.Millisecond)

	mock.Add(5 * time.Second)
	time.Sleep(20 * time.Millisecond)

	c.mu.RLock()
	raw := len(c.entries)
	c.mu.RUnlock()
	assert.Equal(t, 0, raw, "expired entries are gone from the map, not merely hidden")
}

func TestCleanerStopsOnCancel(t *testing.T) {
	var sweeps atomic.Int64
	store := sweepFunc(func() int {
		sweeps.Add(1)
		return 0
	})

	mock := clock.NewMock()
	cleaner := NewCleaner(store, time.Second, discardLogger(), mock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cleaner.Start(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	mock.Add(time.Second)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int64(1), sweeps.Load())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleaner did not stop after cancel")
	}

	// Further clock movement must not trigger sweeps.
	mock.Add(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), sweeps.Load())
}

type sweepFunc func() int

func (f sweepFunc) RemoveExpired() int { return f() }
