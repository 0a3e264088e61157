package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rangganata/ai-manager/internal/ratelimit"
)

// RequestRateLimiter applies the per-IP fixed-window admission limit to
// every request passing through it.
type RequestRateLimiter struct {
	store *ratelimit.Store
}

// NewRequestRateLimiter wraps a rate limit store keyed by client IP.
func NewRequestRateLimiter(store *ratelimit.Store) *RequestRateLimiter {
	return &RequestRateLimiter{store: store}
}

// Handler returns middleware that checks the per-IP admission counter.
// Admitted requests carry X-RateLimit-* headers; denials return 429 with a
// Retry-After header and a JSON error body.
func (rl *RequestRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := rl.store.Check(clientIP(r))

		SetRateLimitHeaders(w, result)

		if !result.Allowed {
			WriteRateLimited(w, result, "Too many requests. Please try again later.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// SetRateLimitHeaders writes the standard rate limit headers for a check
// result. Reset is ISO-8601 so clients can schedule retries directly.
func SetRateLimitHeaders(w http.ResponseWriter, result ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", result.ResetAt.UTC().Format(time.RFC3339))
}

// WriteRateLimited writes a 429 response with Retry-After and a JSON body.
func WriteRateLimited(w http.ResponseWriter, result ratelimit.Result, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// clientIP resolves the originating client IP, honoring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
