package ratelimit

import (
	"math"
	"net/http"
	"strconv"

	"github.com/nadajinny/GROO/internal/apperror"
	"github.com/nadajinny/GROO/internal/httpx"
	"github.com/nadajinny/GROO/internal/observability"
)

type KeyFunc func(r *http.Request) string

func ClientIPKey(trustProxy bool) KeyFunc {
	return func(r *http.Request) string {
		return httpx.ClientIP(r, trustProxy)
	}
}

// Middleware rejects requests over budget with 429 before they reach any
// authentication or handler code.
func Middleware(limiter Limiter, keyFunc KeyFunc, logger *observability.Logger, next http.Handler) http.Handler {
	if logger == nil {
		logger = observability.Discard()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := keyFunc(r)
		decision, err := limiter.Allow(r.Context(), key)
		if err != nil {
			logger.Warn("rate_limit_backend_failed", map[string]any{"error": err.Error()})
		}

		if !decision.Allowed {
			observability.AdmissionDecisions.WithLabelValues("denied").Inc()
			logger.Info("rate_limit_exceeded", map[string]any{"client": key, "path": r.URL.Path})

			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
			httpx.WriteError(w, apperror.ErrTooManyRequests)
			return
		}

		observability.AdmissionDecisions.WithLabelValues("allowed").Inc()
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		next.ServeHTTP(w, r)
	})
}
