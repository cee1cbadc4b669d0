package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/budget"
)

// newBudgetRouter runs the handler without persistence: settings land on the
// controller only and alert listing is exercised in the budget package tests.
func newBudgetRouter(t *testing.T) (*chi.Mux, *apiEnv) {
	t.Helper()
	e := newAPIEnv(t)
	h := NewBudgetHandler(zap.NewNop(), e.cfg, e.ctrl, nil, nil)

	r := chi.NewRouter()
	r.Get("/v1/budget", h.Status)
	r.Get("/v1/budget/config", h.GetConfig)
	r.Put("/v1/budget/config", h.UpdateConfig)
	r.Get("/v1/alerts", h.ListAlerts)
	r.Post("/v1/alerts/{id}/ack", h.AcknowledgeAlert)
	return r, e
}

func TestBudgetStatusReflectsLedger(t *testing.T) {
	r, e := newBudgetRouter(t)
	e.ctrl.Ledger().Apply("qwen-max", 2,
		domain.CostBreakdown{TotalCost: 7, Currency: "USD"}, nil, domain.TokenUsage{})

	rec := doRequest(t, r, http.MethodGet, "/v1/budget", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status budget.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 70.0, status.MonthlyBudget)
	assert.InDelta(t, 7.0, status.Spent, 1e-9)
	assert.InDelta(t, 0.1, status.Utilization, 1e-9)
	assert.False(t, status.Paused)
	assert.InDelta(t, 7.0, status.PerModel["qwen-max"], 1e-9)
}

func TestGetBudgetConfigFallsBackToStatic(t *testing.T) {
	r, e := newBudgetRouter(t)

	rec := doRequest(t, r, http.MethodGet, "/v1/budget/config", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg config.BudgetConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, e.cfg.Budget.MonthlyBudget, cfg.MonthlyBudget)
	assert.Equal(t, e.cfg.Budget.Timezone, cfg.Timezone)
}

func TestUpdateBudgetConfigAppliesImmediately(t *testing.T) {
	r, e := newBudgetRouter(t)

	rec := doRequest(t, r, http.MethodPut, "/v1/budget/config",
		`{"monthly_budget":100,"warning_threshold":0.7,"critical_threshold":0.9,"auto_pause_at_limit":true,"max_request_cost":2,"max_session_cost":10,"budget_reset_day":1,"timezone":"UTC"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var applied config.BudgetConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &applied))
	assert.Equal(t, 100.0, applied.MonthlyBudget)

	// Admission control sees the new contract without a restart.
	status := e.ctrl.Status()
	assert.Equal(t, 100.0, status.MonthlyBudget)
	assert.Equal(t, 0.7, status.WarningThreshold)
}

func TestUpdateBudgetConfigRejectsInvalid(t *testing.T) {
	r, _ := newBudgetRouter(t)

	cases := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{
			name:    "critical below warning",
			body:    `{"monthly_budget":70,"warning_threshold":0.9,"critical_threshold":0.5,"budget_reset_day":1,"timezone":"UTC"}`,
			wantMsg: "critical_threshold",
		},
		{
			name:    "zero budget",
			body:    `{"monthly_budget":0,"warning_threshold":0.8,"critical_threshold":0.95,"budget_reset_day":1}`,
			wantMsg: "monthly_budget must be positive",
		},
		{
			name:    "reset day out of range",
			body:    `{"monthly_budget":70,"warning_threshold":0.8,"critical_threshold":0.95,"budget_reset_day":31}`,
			wantMsg: "budget_reset_day",
		},
		{
			name:    "bad timezone",
			body:    `{"monthly_budget":70,"warning_threshold":0.8,"critical_threshold":0.95,"budget_reset_day":1,"timezone":"Mars/Olympus"}`,
			wantMsg: "timezone",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, r, http.MethodPut, "/v1/budget/config", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			resp := envelope(t, rec)
			require.NotNil(t, resp.Error)
			assert.Contains(t, resp.Error.Message, tc.wantMsg)
		})
	}
}

func TestListAlertsRejectsBadLimit(t *testing.T) {
	r, _ := newBudgetRouter(t)

	rec := doRequest(t, r, http.MethodGet, "/v1/alerts?limit=zero", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := envelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "limit must be a positive integer")
}

func TestAcknowledgeAlertRequiresAcknowledger(t *testing.T) {
	r, _ := newBudgetRouter(t)

	rec := doRequest(t, r, http.MethodPost, "/v1/alerts/some-id/ack", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := envelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "acknowledged_by is required")
}
