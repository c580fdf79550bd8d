package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/stashd/warden/internal/errors"
	"github.com/stashd/warden/internal/metrics"
	"github.com/stashd/warden/internal/ratelimit"
)

// RateLimit enforces the per-client request budget. Every response
// carries X-RateLimit headers; a rejected request gets a 429 with a
// Retry-After hint. Requests whose client cannot be identified are
// passed through unlimited.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := clientIP(r)
			allowed := limiter.Allow(id)
			status := limiter.Status(id)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(status.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(status.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(status.ResetAt.Unix(), 10))

			metrics.RecordRateLimitDecision(r.Context(), allowed)

			if !allowed {
				retryAfter := int(math.Ceil(time.Until(status.ResetAt).Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				appErr := apperrors.NewRateLimitError(
					"Request budget exhausted for this window",
					"RATE_LIMITED",
					"Wait for the window to reset before retrying.",
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(appErr.StatusCode)
				json.NewEncoder(w).Encode(appErr)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP picks the identifier the limiter buckets by: the first
// X-Forwarded-For hop, then X-Real-IP, then the peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(ip)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
