package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/ratelimit"
)

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("redis gone")
}
func (brokenLimiter) AllowN(context.Context, string, int, int, time.Duration) (bool, error) {
	return false, errors.New("redis gone")
}
func (brokenLimiter) Remaining(context.Context, string, int, time.Duration) (int, error) {
	return 0, errors.New("redis gone")
}
func (brokenLimiter) Reset(context.Context, string) error { return errors.New("redis gone") }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(t *testing.T, h http.Handler, path, remote string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_RefusesOverLimit(t *testing.T) {
	limiter := ratelimit.NewInMemory()
	t.Cleanup(limiter.Close)

	cfg := config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, Burst: 0, Window: time.Minute}
	h := RateLimit(limiter, cfg, zap.NewNop())(okHandler())

	for i := 0; i < 2; i++ {
		rec := doRequest(t, h, "/v1/process", "10.0.0.1:4000")
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(t, h, "/v1/process", "10.0.0.1:4000")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var resp domain.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.CodeRateLimitExceeded, resp.Error.Code)
}

func TestRateLimit_ClientsAreIndependent(t *testing.T) {
	limiter := ratelimit.NewInMemory()
	t.Cleanup(limiter.Close)

	cfg := config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 0, Window: time.Minute}
	h := RateLimit(limiter, cfg, zap.NewNop())(okHandler())

	rec := doRequest(t, h, "/v1/process", "10.0.0.1:4000")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, h, "/v1/process", "10.0.0.1:4000")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = doRequest(t, h, "/v1/process", "10.0.0.2:4000")
	assert.Equal(t, http.StatusOK, rec.Code, "a different client IP has its own window")
}

func TestRateLimit_ProbesBypassTheLimiter(t *testing.T) {
	limiter := ratelimit.NewInMemory()
	t.Cleanup(limiter.Close)

	cfg := config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 0, Window: time.Minute}
	h := RateLimit(limiter, cfg, zap.NewNop())(okHandler())

	for i := 0; i < 5; i++ {
		rec := doRequest(t, h, "/health", "10.0.0.1:4000")
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimit_FailsOpenWhenLimiterErrors(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 0, Window: time.Minute}
	h := RateLimit(brokenLimiter{}, cfg, zap.NewNop())(okHandler())

	for i := 0; i < 3; i++ {
		rec := doRequest(t, h, "/v1/process", "10.0.0.1:4000")
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimit_DisabledIsPassthrough(t *testing.T) {
	limiter := ratelimit.NewInMemory()
	t.Cleanup(limiter.Close)

	cfg := config.RateLimitConfig{Enabled: false, RequestsPerMinute: 1, Burst: 0, Window: time.Minute}
	h := RateLimit(limiter, cfg, zap.NewNop())(okHandler())

	for i := 0; i < 4; i++ {
		rec := doRequest(t, h, "/v1/process", "10.0.0.1:4000")
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
