package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/models"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/budget"
)

// BudgetHandler serves spend status and the budget admin surface.
type BudgetHandler struct {
	logger     *zap.Logger
	cfg        *config.Config
	controller *budget.Controller
	alerts     *budget.GormAlertStore
	settings   *budget.SettingsStore
}

func NewBudgetHandler(logger *zap.Logger, cfg *config.Config, ctrl *budget.Controller, alerts *budget.GormAlertStore, settings *budget.SettingsStore) *BudgetHandler {
	return &BudgetHandler{
		logger:     logger,
		cfg:        cfg,
		controller: ctrl,
		alerts:     alerts,
		settings:   settings,
	}
}

// Status returns the current spend snapshot
// @Summary Budget status
// @Description Returns period spend, utilization, per-model and per-tier breakdowns, free tier usage, and pause state
// @Tags Budget
// @Produce json
// @Success 200 {object} budget.Status
// @Router /v1/budget [get]
func (h *BudgetHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.Status())
}

// GetConfig returns the active budget contract
// @Summary Get budget configuration
// @Description Returns the persisted budget contract; the config file seeds it on first boot
// @Tags Budget
// @Produce json
// @Success 200 {object} config.BudgetConfig
// @Router /v1/budget/config [get]
func (h *BudgetHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	if h.settings == nil {
		writeJSON(w, http.StatusOK, h.cfg.Budget)
		return
	}
	cfg, err := h.settings.LoadOrSeed(r.Context(), h.cfg.Budget)
	if err != nil {
		h.logger.Error("failed to load budget settings", zap.Error(err))
		writeDomainError(w, http.StatusInternalServerError,
			domain.NewError(domain.CodeOrchestratorError, "failed to load budget settings"))
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// UpdateConfig replaces the budget contract
// @Summary Update budget configuration
// @Description Validates and persists a new budget contract and applies it to admission control immediately
// @Tags Budget
// @Accept json
// @Produce json
// @Param request body config.BudgetConfig true "New budget contract"
// @Success 200 {object} config.BudgetConfig
// @Failure 400 {object} domain.Response
// @Router /v1/budget/config [put]
func (h *BudgetHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var next config.BudgetConfig
	if derr := decodeBody(r, &next); derr != nil {
		writeDomainError(w, http.StatusBadRequest, derr)
		return
	}
	if err := next.Validate(); err != nil {
		writeDomainError(w, http.StatusBadRequest,
			domain.NewError(domain.CodeOrchestratorError, err.Error()))
		return
	}

	if h.settings != nil {
		if err := h.settings.Save(r.Context(), next); err != nil {
			h.logger.Error("failed to persist budget settings", zap.Error(err))
			writeDomainError(w, http.StatusInternalServerError,
				domain.NewError(domain.CodeOrchestratorError, "failed to persist budget settings"))
			return
		}
	}
	h.controller.UpdateSettings(r.Context(), next)

	h.logger.Info("budget contract updated",
		zap.Float64("monthly_budget", next.MonthlyBudget),
		zap.Float64("warning_threshold", next.WarningThreshold),
		zap.Float64("critical_threshold", next.CriticalThreshold))
	writeJSON(w, http.StatusOK, next)
}

type alertListResponse struct {
	Alerts []models.Alert `json:"alerts"`
	Count  int            `json:"count"`
}

// ListAlerts returns recent budget alerts
// @Summary List alerts
// @Description Returns the newest budget and free-tier alerts first
// @Tags Budget
// @Produce json
// @Param limit query int false "Maximum rows (default 50)"
// @Success 200 {object} alertListResponse
// @Router /v1/alerts [get]
func (h *BudgetHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeDomainError(w, http.StatusBadRequest,
				domain.NewError(domain.CodeOrchestratorError, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	alerts, err := h.alerts.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list alerts", zap.Error(err))
		writeDomainError(w, http.StatusInternalServerError,
			domain.NewError(domain.CodeOrchestratorError, "failed to list alerts"))
		return
	}
	writeJSON(w, http.StatusOK, alertListResponse{Alerts: alerts, Count: len(alerts)})
}

type ackRequest struct {
	AcknowledgedBy string `json:"acknowledged_by"`
}

// AcknowledgeAlert marks an alert as handled
// @Summary Acknowledge an alert
// @Description Stamps the alert with who acknowledged it; acknowledging twice keeps the first stamp
// @Tags Budget
// @Accept json
// @Produce json
// @Param id path string true "Alert ID"
// @Param request body ackRequest true "Acknowledger"
// @Success 200 {object} map[string]string
// @Failure 404 {object} domain.Response
// @Router /v1/alerts/{id}/ack [post]
func (h *BudgetHandler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ackRequest
	if derr := decodeBody(r, &req); derr != nil {
		writeDomainError(w, http.StatusBadRequest, derr)
		return
	}
	if req.AcknowledgedBy == "" {
		writeDomainError(w, http.StatusBadRequest,
			domain.NewError(domain.CodeOrchestratorError, "acknowledged_by is required"))
		return
	}

	err := h.alerts.Acknowledge(r.Context(), id, req.AcknowledgedBy)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeDomainError(w, http.StatusNotFound,
			domain.Errorf(domain.CodeOrchestratorError, "no unacknowledged alert %q", id))
		return
	}
	if err != nil {
		h.logger.Error("failed to acknowledge alert", zap.String("alert_id", id), zap.Error(err))
		writeDomainError(w, http.StatusInternalServerError,
			domain.NewError(domain.CodeOrchestratorError, "failed to acknowledge alert"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged", "id": id})
}
