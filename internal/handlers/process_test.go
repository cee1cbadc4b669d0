package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/analyzer"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/budget"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/collab"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/conversation"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/orchestrator"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/pricing"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/providers"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/registry"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/routing"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/usage"
)

func testConfig() *config.Config {
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
			CascadeEnabled:           true,
			DifficultyThreshold:      0.5,
			MaxRetries:               2,
			QCDepth:                  "full",
			MaxSubtasks:              10,
			AutoEscalateAfterRetries: 2,
			MinScore:                 70,
			RequiresReview:           60,
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
	}
	cfg.Providers.Alibaba.APIKey = "k"
	cfg.Providers.Google.APIKey = "k"
	cfg.Providers.Anthropic.APIKey = "k"
	cfg.Providers.OpenAI.APIKey = "k"
	cfg.Providers.OpenRouter.APIKey = "k"
	return cfg
}

// apiEnv is a full service wired to handlers, minus persistence. Handler
// tests that only exercise validation use a nil service instead.
type apiEnv struct {
	cfg  *config.Config
	svc  *orchestrator.Service
	reg  *registry.Registry
	ctrl *budget.Controller
	pm   *pricing.Manager
	h    *OrchestratorHandler
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	logger := zap.NewNop()
	cfg := testConfig()

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
	return &apiEnv{
		cfg:  cfg,
		svc:  svc,
		reg:  reg,
		ctrl: ctrl,
		pm:   pm,
		h:    NewOrchestratorHandler(logger, cfg, svc, nil),
	}
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// envelope decodes the uniform response body every endpoint writes on
// failure (and /v1/process writes on success).
func envelope(t *testing.T, rec *httptest.ResponseRecorder) domain.Response {
	t.Helper()
	var resp domain.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp),
		"body was not a response envelope: %s", rec.Body.String())
	return resp
}

func TestStatusForMapsTaxonomyCodes(t *testing.T) {
	cases := []struct {
		code domain.Code
		want int
	}{
		{domain.CodeBudgetExceeded, http.StatusPaymentRequired},
		{domain.CodeCostLimitExceeded, http.StatusPaymentRequired},
		{domain.CodeRateLimitExceeded, http.StatusTooManyRequests},
		{domain.CodeTimeout, http.StatusGatewayTimeout},
		{domain.CodeModelUnavailable, http.StatusServiceUnavailable},
		{domain.CodeAPIKeyMissing, http.StatusServiceUnavailable},
		{domain.CodeInvalidTaskType, http.StatusBadRequest},
		{domain.CodeGenerationError, http.StatusBadGateway},
		{domain.CodeOrchestratorError, http.StatusInternalServerError},
		{domain.CodeCapabilityError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.code), "code %s", tc.code)
	}
}

func TestProcessRejectsBadRequests(t *testing.T) {
	cfg := testConfig()
	cfg.Analyzer.MaxPromptChars = 120
	// Validation runs before the service is touched, so nil is safe here.
	h := NewOrchestratorHandler(zap.NewNop(), cfg, nil, nil)

	cases := []struct {
		name     string
		body     string
		wantCode domain.Code
		wantMsg  string
	}{
		{
			name:     "blank prompt",
			body:     `{"prompt":"   "}`,
			wantCode: domain.CodeOrchestratorError,
			wantMsg:  "prompt is required",
		},
		{
			name:     "oversized prompt",
			body:     fmt.Sprintf(`{"prompt":%q}`, strings.Repeat("x", 121)),
			wantCode: domain.CodeOrchestratorError,
			wantMsg:  "exceeds 120 characters",
		},
		{
			name:     "unknown task type",
			body:     `{"prompt":"write a haiku","task_type":"haiku"}`,
			wantCode: domain.CodeInvalidTaskType,
			wantMsg:  "unknown task type",
		},
		{
			name:     "tier out of range",
			body:     `{"prompt":"write a haiku","preferred_tier":9}`,
			wantCode: domain.CodeOrchestratorError,
			wantMsg:  "preferred_tier",
		},
		{
			name:     "unknown field",
			body:     `{"prompt":"write a haiku","shout":true}`,
			wantCode: domain.CodeOrchestratorError,
			wantMsg:  "invalid request body",
		},
		{
			name:     "truncated json",
			body:     `{"prompt"`,
			wantCode: domain.CodeOrchestratorError,
			wantMsg:  "invalid request body",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, http.HandlerFunc(h.Process), http.MethodPost, "/v1/process", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			resp := envelope(t, rec)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.wantCode, resp.Error.Code)
			assert.Contains(t, resp.Error.Message, tc.wantMsg)
		})
	}
}

func TestProcessReturnsResultEnvelope(t *testing.T) {
	e := newAPIEnv(t)

	rec := doRequest(t, http.HandlerFunc(e.h.Process), http.MethodPost, "/v1/process",
		`{"prompt":"Create a Python function to compute fibonacci","task_type":"coding","session_id":"sess-http"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := envelope(t, rec)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.NotEmpty(t, resp.ModelUsed)
	assert.NotEmpty(t, resp.Text)
	assert.NotZero(t, resp.TokenUsage.Total)

	// The request settled against the budget ledger.
	assert.GreaterOrEqual(t, e.ctrl.Status().Requests, int64(1))
}

func TestProcessMapsBudgetDenialToPaymentRequired(t *testing.T) {
	e := newAPIEnv(t)
	e.ctrl.Ledger().Apply("qwen-max", 2,
		domain.CostBreakdown{TotalCost: e.cfg.Budget.MonthlyBudget, Currency: "USD"},
		nil, domain.TokenUsage{})

	rec := doRequest(t, http.HandlerFunc(e.h.Process), http.MethodPost, "/v1/process",
		`{"prompt":"Create a Python function to compute fibonacci","task_type":"coding"}`)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	resp := envelope(t, rec)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.CodeBudgetExceeded, resp.Error.Code)
}

func TestCollaborativeRejectsBlankPrompt(t *testing.T) {
	h := NewOrchestratorHandler(zap.NewNop(), testConfig(), nil, nil)

	rec := doRequest(t, http.HandlerFunc(h.Collaborative), http.MethodPost, "/v1/collaborative", `{"prompt":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := envelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.CodeOrchestratorError, resp.Error.Code)
}

func TestCollaborativeRunsSessionToCompletion(t *testing.T) {
	e := newAPIEnv(t)

	rec := doRequest(t, http.HandlerFunc(e.h.Collaborative), http.MethodPost, "/v1/collaborative",
		`{"prompt":"Implement a REST API for user authentication with JWT tokens, include unit tests","task_type":"coding"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var session domain.CodingSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, domain.CodingCompleted, session.Status)
	require.NotNil(t, session.Plan)
	assert.NotEmpty(t, session.Plan.Subtasks)
	assert.Equal(t, session.Progress.Total, session.Progress.Completed)
	require.NotNil(t, session.FinalReview)
	assert.True(t, session.FinalReview.Passed)
}

func TestCollaborativeAsyncReturnsAccepted(t *testing.T) {
	e := newAPIEnv(t)

	rec := doRequest(t, http.HandlerFunc(e.h.Collaborative), http.MethodPost, "/v1/collaborative?async=1",
		`{"prompt":"Create a Python function to compute fibonacci","task_type":"coding"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var acc collaborativeAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acc))
	assert.NotEmpty(t, acc.SessionID)
	assert.Equal(t, string(domain.CodingPlanning), acc.Status)
	assert.Equal(t, "/v1/collaborative/"+acc.SessionID, acc.StatusURL)
	assert.Equal(t, acc.StatusURL+"/stream", acc.StreamURL)
}

func TestCollaborativeStatusWithoutPersistence(t *testing.T) {
	e := newAPIEnv(t)
	r := chi.NewRouter()
	r.Get("/v1/collaborative/{id}", e.h.CollaborativeStatus)

	rec := doRequest(t, r, http.MethodGet, "/v1/collaborative/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	resp := envelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "session persistence is disabled")
}

func TestCollaborativeStreamDeliversEventsUntilTerminal(t *testing.T) {
	e := newAPIEnv(t)
	r := chi.NewRouter()
	r.Get("/v1/collaborative/{id}/stream", e.h.CollaborativeStream)
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/collaborative/stream-test/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	// The handler subscribes before completing the handshake, so events
	// published after Dial returns always reach the buffer.
	e.svc.Hub().Publish(collab.SessionEvent{
		SessionID: "stream-test",
		Type:      collab.EventSubtaskDone,
		SubtaskID: "st-1",
	})
	e.svc.Hub().Publish(collab.SessionEvent{
		SessionID: "stream-test",
		Type:      collab.EventSessionCompleted,
		Score:     95,
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first collab.SessionEvent
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, collab.EventSubtaskDone, first.Type)
	assert.Equal(t, "st-1", first.SubtaskID)
	assert.False(t, first.Timestamp.IsZero())

	var second collab.SessionEvent
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, collab.EventSessionCompleted, second.Type)
	assert.Equal(t, 95.0, second.Score)

	// Terminal event closes the stream from the server side.
	_, _, readErr := conn.ReadMessage()
	require.Error(t, readErr)
	assert.True(t, websocket.IsCloseError(readErr, websocket.CloseNormalClosure),
		"expected normal closure, got %v", readErr)
}

func TestCollaborativeStreamUnknownSessionStaysOpen(t *testing.T) {
	// Without a session store there is no terminal snapshot to replay, so a
	// stream for an unknown session idles until the client gives up.
	e := newAPIEnv(t)
	r := chi.NewRouter()
	r.Get("/v1/collaborative/{id}/stream", e.h.CollaborativeStream)
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/collaborative/gone/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, readErr := conn.ReadMessage()
	require.Error(t, readErr)
	assert.False(t, websocket.IsCloseError(readErr, websocket.CloseNormalClosure))
}

func TestProcessAppliesConversationContext(t *testing.T) {
	e := newAPIEnv(t)

	body := `{"prompt":"Now extend it with memoization","task_type":"coding","conversation_id":"conv-http"}`
	first := doRequest(t, http.HandlerFunc(e.h.Process), http.MethodPost, "/v1/process", body)
	require.Equal(t, http.StatusOK, first.Code)

	second := doRequest(t, http.HandlerFunc(e.h.Process), http.MethodPost, "/v1/process", body)
	require.Equal(t, http.StatusOK, second.Code)
	resp := envelope(t, second)
	assert.True(t, resp.Success)
}
