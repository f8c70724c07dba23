package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// OuterRateLimitConfig holds the coarse per-IP limit applied in front of
// the detection engine. It is a cheap first line of defense; the engine's
// scoped limiter makes the fine-grained decisions.
type OuterRateLimitConfig struct {
	RequestsPerMinute int
}

// RateLimitByIP creates a middleware that rate limits requests by client IP
func RateLimitByIP(config OuterRateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"Rate limit exceeded"}`))
		}),
	)
}
