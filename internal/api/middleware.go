package api

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/paintconnect/foreman/internal/metrics"
	"github.com/paintconnect/foreman/internal/redis"
)

// KeyFunc extracts the rate limit key from a request.
type KeyFunc func(r *http.Request) string

// IPKeyFunc keys the limiter by client IP. RemoteAddr is already rewritten
// by chi's RealIP middleware when the request came through a proxy.
func IPKeyFunc(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware enforces the limiter on every request it wraps.
// A nil limiter disables limiting, so the server still works without Redis.
func RateLimitMiddleware(limiter *redis.RateLimiter, logger *zap.Logger, keyFunc KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFunc(r)
			result, err := limiter.Allow(r.Context(), key)
			if err != nil {
				// Fail open: a Redis hiccup should not take the API down.
				logger.Warn("rate limit check failed", zap.Error(err), zap.String("key", key))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", result.ResetAt.Unix()))

			if !result.Allowed {
				metrics.RecordRateLimitRejection(key)
				retryAfter := time.Until(result.ResetAt).Seconds()
				w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter))
				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"type":"rate_limited","title":"Too Many Requests","status":429,"detail":"rate limit exceeded, retry later"}`)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
