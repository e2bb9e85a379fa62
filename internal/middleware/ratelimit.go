package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cashpoint-io/atmd/internal/ratelimit"
)

// RateLimitMiddleware throttles action submissions per terminal and across
// the whole fleet.
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	rules   *ratelimit.Rules
	log     *slog.Logger
}

// NewRateLimitMiddleware constructs a rate-limit middleware component.
func NewRateLimitMiddleware(limiter ratelimit.Limiter, rules *ratelimit.Rules, log *slog.Logger) *RateLimitMiddleware {
	if log == nil {
		log = slog.Default()
	}

	return &RateLimitMiddleware{
		limiter: limiter,
		rules:   rules,
		log:     log,
	}
}

// Handle enforces the per-terminal and global limits before passing the
// request on. A throttled request gets 429 with a Retry-After header.
func (m *RateLimitMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil || m.rules == nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()

		if limit, window, err := m.rules.GlobalLimit(); err == nil {
			if !m.allow(ctx, "terminal:ratelimit:global", limit, window, w) {
				return
			}
		}

		if terminalID := chi.URLParam(r, "terminalID"); terminalID != "" {
			limit, window, err := m.rules.PerTerminalLimit()
			if err == nil {
				key := fmt.Sprintf("terminal:ratelimit:%s", terminalID)
				if !m.allow(ctx, key, limit, window, w) {
					return
				}
			}
		}

		next.ServeHTTP(w, r)
	})
}

// allow runs one limiter check and writes the 429 response on rejection.
// Limiter implementations differ: some signal exhaustion with a nil error
// and Allowed=false, others return ErrLimitExceeded.
func (m *RateLimitMiddleware) allow(ctx context.Context, key string, limit int, window time.Duration, w http.ResponseWriter) bool {
	res, err := m.limiter.Check(ctx, key, limit, window)

	switch {
	case errors.Is(err, ratelimit.ErrLimitExceeded):
		m.reject(w, res)
		return false
	case err != nil:
		// Fail open: a broken limiter must not take the fleet down.
		m.log.Error("rate limit check failed", slog.String("key", key), slog.Any("error", err))
		return true
	case res != nil && !res.Allowed:
		m.reject(w, res)
		return false
	}

	return true
}

func (m *RateLimitMiddleware) reject(w http.ResponseWriter, res *ratelimit.Result) {
	retryAfter := 1
	if res != nil {
		if secs := int(time.Until(res.ResetAt).Seconds()); secs > retryAfter {
			retryAfter = secs
		}
	}

	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	http.Error(w, "too many requests", http.StatusTooManyRequests)
}
