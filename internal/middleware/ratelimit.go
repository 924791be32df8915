package middleware

import (
	"net/http"
	"strconv"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/logger"
)

// NewLimiter builds an in-memory limiter from a formatted rate such as "600-M".
func NewLimiter(formatted string) (*limiter.Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}
	return limiter.New(memory.NewStore(), rate), nil
}

// RateLimit rejects clients that exceed the limiter's rate, keyed by IP.
func RateLimit(l *limiter.Limiter, log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			ip := l.GetIPKey(r)
			lctx, err := l.Get(r.Context(), ip)
			if err != nil {
				log.Error().Err(err).Str("ip", ip).Msg("Failed to get rate limit context")
				writeError(w, http.StatusInternalServerError, "INTERNAL", "rate limit check failed")
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

			if lctx.Reached {
				log.Warn().
					Str("ip", ip).
					Int64("limit", lctx.Limit).
					Msg("Rate limit exceeded")
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
