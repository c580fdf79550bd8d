package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	apperrors "github.com/stashd/warden/internal/errors"
	"github.com/stashd/warden/internal/metrics"
	"github.com/stashd/warden/internal/ratelimit"
)

func newLimitedHandler(t *testing.T, max int, window time.Duration) http.Handler {
	t.Helper()
	if err := metrics.Init(); err != nil {
		t.Fatalf("metrics.Init() failed: %v", err)
	}
	limiter, err := ratelimit.NewLimiter(ratelimit.Config{MaxRequests: max, Window: window})
	if err != nil {
		t.Fatalf("NewLimiter failed: %v", err)
	}
	return RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRateLimitAllowsUnderLimit(t *testing.T) {
	handler := newLimitedHandler(t, 2, time.Minute)

	for i, wantRemaining := range []string{"1", "0"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/kv/foo", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "2" {
			t.Errorf("Request %d: X-RateLimit-Limit = %q; want 2", i+1, got)
		}
		if got := rec.Header().Get("X-RateLimit-Remaining"); got != wantRemaining {
			t.Errorf("Request %d: X-RateLimit-Remaining = %q; want %q", i+1, got, wantRemaining)
		}
	}
}

func TestRateLimitRejectsOverLimit(t *testing.T) {
	handler := newLimitedHandler(t, 1, time.Minute)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/kv/foo", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("First request should pass, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/kv/foo", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Second request should be rejected, got %d", rec.Code)
	}

	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 {
		t.Errorf("Expected Retry-After of at least 1s, got %q", rec.Header().Get("Retry-After"))
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q; want 0", got)
	}

	var appErr apperrors.AppError
	if err := json.NewDecoder(rec.Body).Decode(&appErr); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	if appErr.Type != apperrors.ErrorTypeRateLimit {
		t.Errorf("Expected rate limit error type, got %s", appErr.Type)
	}
	if appErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected status code 429 in body, got %d", appErr.StatusCode)
	}
}

func TestRateLimitSeparatesClients(t *testing.T) {
	handler := newLimitedHandler(t, 1, time.Minute)

	first := httptest.NewRequest("GET", "/kv/foo", nil)
	first.Header.Set("X-Forwarded-For", "198.51.100.7")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("First client should pass, got %d", rec.Code)
	}

	second := httptest.NewRequest("GET", "/kv/foo", nil)
	second.Header.Set("X-Forwarded-For", "203.0.113.9")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	if rec.Code != http.StatusOK {
		t.Fatalf("Second client has its own budget, got %d", rec.Code)
	}

	repeat := httptest.NewRequest("GET", "/kv/foo", nil)
	repeat.Header.Set("X-Forwarded-For", "198.51.100.7")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, repeat)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("First client exhausted its budget, got %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		realIP     string
		remoteAddr string
		expected   string
	}{
		{"forwarded single", "1.2.3.4", "", "10.0.0.1:9999", "1.2.3.4"},
		{"forwarded chain takes first hop", "1.2.3.4, 5.6.7.8", "", "10.0.0.1:9999", "1.2.3.4"},
		{"real ip when no forwarded", "", "5.6.7.8", "10.0.0.1:9999", "5.6.7.8"},
		{"peer address fallback", "", "", "10.0.0.1:9999", "10.0.0.1"},
		{"peer address without port", "", "", "10.0.0.1", "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := clientIP(req); got != tt.expected {
				t.Errorf("clientIP() = %q; want %q", got, tt.expected)
			}
		})
	}
}
