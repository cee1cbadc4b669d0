package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/analyzer"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/budget"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/conversation"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/orchestrator"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/pricing"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/providers"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/ratelimit"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/registry"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/routing"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/usage"
)

func routerConfig() *config.Config {
	cfg := &config.Config{
		Budget: config.BudgetConfig{
			MonthlyBudget:     70,
			WarningThreshold:  0.8,
			CriticalThreshold: 0.95,
			AutoPauseAtLimit:  true,
			MaxRequestCost:    2,
			MaxSessionCost:    10,
			BudgetResetDay:    1,
			Timezone:          "UTC",
		},
		Routing: config.RoutingConfig{
			DefaultTier:             1,
			FallbackEnabled:         true,
			Timeout:                 5 * time.Second,
			FlagshipModel:           "gpt-5",
			CriticalSignalThreshold: 2,
			Escalation: config.EscalationConfig{
				ForceFlagshipScore:   5,
				SuppressLowTierScore: 3,
				PreferHighTierScore:  2,
				LowTierPenalty:       0.2,
			},
		},
		Collab: config.CollabConfig{
			CascadeEnabled:      true,
			DifficultyThreshold: 0.5,
			MaxRetries:          2,
			QCDepth:             "full",
			MaxSubtasks:         10,
			MinScore:            70,
			RequiresReview:      60,
		},
		Analyzer: config.AnalyzerConfig{
			MaxPromptChars:        50000,
			OutputTokenCeiling:    8000,
			EscalationFactorLimit: 1.5,
		},
		Quality: config.QualityConfig{
			MinResponseLength: 50,
			MinConfidence:     0.3,
		},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		},
	}
	cfg.Providers.Alibaba.APIKey = "k"
	cfg.Providers.Google.APIKey = "k"
	cfg.Providers.Anthropic.APIKey = "k"
	cfg.Providers.OpenAI.APIKey = "k"
	cfg.Providers.OpenRouter.APIKey = "k"
	return cfg
}

func newTestRouter(t *testing.T, cfg *config.Config, limiter ratelimit.Limiter) http.Handler {
	t.Helper()
	logger := zap.NewNop()

	reg, err := registry.NewFromConfig(cfg, logger, providers.WithLatencyScale(0))
	require.NoError(t, err)

	pm, err := pricing.NewManager(logger)
	require.NoError(t, err)

	tracker := usage.NewTracker(logger)
	ctrl := budget.NewController(budget.ControllerConfig{
		Ledger:  budget.NewLedger(cfg.Budget, logger),
		Pricing: pm,
		Tracker: tracker,
		Logger:  logger,
	})

	an := analyzer.New(cfg.Analyzer, logger)
	svc := orchestrator.New(orchestrator.Deps{
		Config:        cfg,
		Logger:        logger,
		Registry:      reg,
		Router:        routing.New(cfg.Routing, an, reg, ctrl, logger),
		Budget:        ctrl,
		Analyzer:      an,
		Usage:         tracker,
		Conversations: conversation.NewMemoryStore(10),
	})

	return New(Deps{
		Config:   cfg,
		Logger:   logger,
		Service:  svc,
		Registry: reg,
		Pricing:  pm,
		Budget:   ctrl,
		Tracker:  tracker,
		Limiter:  limiter,
	})
}

func TestRouterDispatchesAPIRoutes(t *testing.T) {
	r := newTestRouter(t, routerConfig(), nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/process",
		strings.NewReader(`{"prompt":"Create a Python function to compute fibonacci","task_type":"coding"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.ModelUsed)

	models := httptest.NewRecorder()
	r.ServeHTTP(models, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	assert.Equal(t, http.StatusOK, models.Code)

	budgetRec := httptest.NewRecorder()
	r.ServeHTTP(budgetRec, httptest.NewRequest(http.MethodGet, "/v1/budget", nil))
	assert.Equal(t, http.StatusOK, budgetRec.Code)
}

func TestRouterUnknownRouteReturnsEnvelope(t *testing.T) {
	r := newTestRouter(t, routerConfig(), nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v2/nothing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp domain.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.CodeOrchestratorError, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "/v2/nothing")
}

func TestRouterHealthDegradedWithoutBackingStores(t *testing.T) {
	r := newTestRouter(t, routerConfig(), nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded"`)

	ready := httptest.NewRecorder()
	r.ServeHTTP(ready, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, ready.Code)
}

func TestRouterExposesPrometheusMetrics(t *testing.T) {
	r := newTestRouter(t, routerConfig(), nil)

	// One observed request so the HTTP counters exist in the gather.
	seed := httptest.NewRecorder()
	r.ServeHTTP(seed, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	require.Equal(t, http.StatusOK, seed.Code)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "orch_http_requests_total")
}

func TestRouterRateLimitsClients(t *testing.T) {
	cfg := routerConfig()
	cfg.RateLimit = config.RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 2,
		Burst:             0,
		Window:            time.Minute,
	}
	limiter := ratelimit.NewInMemory()
	defer limiter.Close()

	r := newTestRouter(t, cfg, limiter)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
		require.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var resp domain.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.CodeRateLimitExceeded, resp.Error.Code)

	// Probes stay reachable for a throttled client.
	probe := httptest.NewRecorder()
	r.ServeHTTP(probe, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.NotEqual(t, http.StatusTooManyRequests, probe.Code)
}
