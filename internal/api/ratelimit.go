package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// RateLimiter counts hits per subject within a window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// RateLimitMiddleware throttles authenticated clients per scope. Limiter
// failures let the request through.
func RateLimitMiddleware(limiter RateLimiter, scope string, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			count, retryAfter, err := limiter.ConsumeRateLimit(r.Context(), scope, userID, limit, window)
			if err != nil {
				if logger != nil {
					logger.Warn("rate limiter unavailable", "scope", scope, "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			if count > limit {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				respondWithJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Too many requests"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
