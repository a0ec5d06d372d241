package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// RateLimitConfig holds configuration for a specific rate limit
type RateLimitConfig struct {
	Name   string
	Limit  int
	Window time.Duration
	KeyFn  func(*http.Request) string
	// RefundOnSuccess gives the request its increment back when the
	// handler responds 2xx. Used on login so only failed attempts count
	// toward the limit.
	RefundOnSuccess bool
}

// RateLimit creates a fixed-window rate limiting middleware backed by
// Redis counters.
func (m *Middleware) RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.cfg.Security.RateLimiting.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			key := fmt.Sprintf("ratelimit:%s:%s", cfg.Name, cfg.KeyFn(r))

			count, err := m.rdb.Incr(ctx, key)
			if err != nil {
				// Fail open: a limiter outage must not lock everyone out.
				m.log.Error().Err(err).Msg("failed to increment rate limit counter")
				next.ServeHTTP(w, r)
				return
			}

			// Set expiry on first request in the window
			if count == 1 {
				m.rdb.Expire(ctx, key, cfg.Window)
			}

			ttl, _ := m.rdb.TTL(ctx, key)
			resetTime := time.Now().Add(ttl).Unix()

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(0, cfg.Limit-int(count))))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime, 10))

			if int(count) > cfg.Limit {
				w.Header().Set("Retry-After", strconv.FormatInt(int64(ttl.Seconds()), 10))
				m.reject(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
				return
			}

			if !cfg.RefundOnSuccess {
				next.ServeHTTP(w, r)
				return
			}

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)
			if wrapped.statusCode >= 200 && wrapped.statusCode < 300 {
				// Refund this request's own increment only; earlier failures
				// in the window still count.
				if _, err := m.rdb.Decr(ctx, key); err != nil {
					m.log.Error().Err(err).Msg("failed to refund rate limit counter")
				}
			}
		})
	}
}

// IPKey returns the client IP address as the rate limit key
func IPKey(r *http.Request) string {
	return ClientIP(r)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
