package origin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/stashd/warden/internal/errors"
	"github.com/stashd/warden/internal/metrics"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	if err := metrics.Init(); err != nil {
		t.Fatalf("metrics.Init() failed: %v", err)
	}
	c := NewClient(serverURL, 2*time.Second)
	c.retry.InitialDelay = time.Millisecond
	c.retry.MaxDelay = 2 * time.Millisecond
	return c
}

func TestFetchReturnsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	got, err := c.Fetch(context.Background(), "greeting")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Fetch returned %q; want %q", got, "hello")
	}
}

func TestFetchNotFound(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.Fetch(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("Expected a single attempt for a definitive miss, got %d", attempts.Load())
	}
}

func TestFetchRetriesOnServerError(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	got, err := c.Fetch(context.Background(), "flaky")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(got) != "recovered" {
		t.Errorf("Fetch returned %q; want %q", got, "recovered")
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestFetchUpstreamErrorAfterRetries(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.Fetch(context.Background(), "broken")

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("Expected AppError, got %v", err)
	}
	if appErr.Type != apperrors.ErrorTypeUpstream {
		t.Errorf("Expected upstream error type, got %s", appErr.Type)
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestFetchEscapesKey(t *testing.T) {
	var gotPath atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.EscapedPath())
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	if _, err := c.Fetch(context.Background(), "a b/c"); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got := gotPath.Load(); got != "/a%20b%2Fc" {
		t.Errorf("Origin saw path %v; want /a%%20b%%2Fc", got)
	}
}
