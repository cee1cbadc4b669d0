package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/ratelimit"
)

// RateLimit refuses clients that exceed the per-IP request quota. The
// limiter error path fails open: an unreachable Redis must not take the API
// down with it.
func RateLimit(limiter ratelimit.Limiter, cfg config.RateLimitConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	// Burst rides on top of the steady rate as headroom inside one window.
	limit := cfg.RequestsPerMinute + cfg.Burst

	return func(next http.Handler) http.Handler {
		if !cfg.Enabled || limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if probePaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key := "ratelimit:" + clientIP(r)
			allowed, err := limiter.Allow(r.Context(), key, limit, window)
			if err != nil {
				logger.Warn("rate limiter unavailable, admitting request",
					zap.String("key", key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				RecordRateLimited(routePattern(r))
				writeRateLimited(w, window)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimited(w http.ResponseWriter, window time.Duration) {
	retryAfter := int(time.Until(time.Now().Truncate(window).Add(window)).Seconds()) + 1
	if retryAfter < 1 {
		retryAfter = 1
	}

	resp := domain.ErrorResponse(
		domain.NewError(domain.CodeRateLimitExceeded, "request rate limit exceeded, slow down"), 0)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(resp)
}

// clientIP strips the port when the proxy headers did not already replace
// RemoteAddr with a bare address.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
