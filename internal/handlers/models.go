package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/pricing"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/registry"
)

// ModelsHandler serves the model catalog with health and pricing attached.
type ModelsHandler struct {
	logger   *zap.Logger
	registry *registry.Registry
	pricing  *pricing.Manager
}

func NewModelsHandler(logger *zap.Logger, reg *registry.Registry, pm *pricing.Manager) *ModelsHandler {
	return &ModelsHandler{logger: logger, registry: reg, pricing: pm}
}

// modelView is one catalog entry with its effective pricing row.
type modelView struct {
	registry.ModelStatus
	Pricing *pricing.Pricing `json:"pricing,omitempty"`
}

type modelListResponse struct {
	Models []modelView `json:"models"`
	Count  int         `json:"count"`
}

// ListModels lists the model catalog
// @Summary List models
// @Description Returns every configured model with tier, capabilities, health, breaker state, lifetime stats, and effective pricing
// @Tags Models
// @Produce json
// @Success 200 {object} modelListResponse
// @Router /v1/models [get]
func (h *ModelsHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	statuses := h.registry.Status()
	views := make([]modelView, 0, len(statuses))
	for _, st := range statuses {
		views = append(views, modelView{
			ModelStatus: st,
			Pricing:     h.pricing.GetPricing(st.Model.ID),
		})
	}
	writeJSON(w, http.StatusOK, modelListResponse{Models: views, Count: len(views)})
}

// GetModel returns one catalog entry
// @Summary Get a model
// @Description Returns a single model with health, breaker state, stats, and pricing
// @Tags Models
// @Produce json
// @Param id path string true "Model ID"
// @Success 200 {object} modelView
// @Failure 404 {object} domain.Response
// @Router /v1/models/{id} [get]
func (h *ModelsHandler) GetModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	status, err := h.registry.StatusFor(id)
	if err != nil {
		writeDomainError(w, http.StatusNotFound, domain.AsError(err))
		return
	}
	writeJSON(w, http.StatusOK, modelView{
		ModelStatus: status,
		Pricing:     h.pricing.GetPricing(id),
	})
}

// calculateRequest is the token usage to price.
type calculateRequest struct {
	Input     int `json:"input_tokens"`
	Output    int `json:"output_tokens"`
	Cached    int `json:"cached_tokens,omitempty"`
	Reasoning int `json:"reasoning_tokens,omitempty"`
}

func (c calculateRequest) usage() domain.TokenUsage {
	u := domain.NewTokenUsage(c.Input, c.Output)
	u.Cached = c.Cached
	u.Reasoning = c.Reasoning
	return u
}

// CalculatePricing prices a usage against one model
// @Summary Calculate cost for a model
// @Description Prices the given token counts against the model's effective pricing row
// @Tags Models
// @Accept json
// @Produce json
// @Param id path string true "Model ID"
// @Param request body calculateRequest true "Token usage"
// @Success 200 {object} domain.CostBreakdown
// @Failure 400 {object} domain.Response
// @Failure 404 {object} domain.Response
// @Router /v1/models/{id}/pricing/calculate [post]
func (h *ModelsHandler) CalculatePricing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req calculateRequest
	if derr := decodeBody(r, &req); derr != nil {
		writeDomainError(w, http.StatusBadRequest, derr)
		return
	}
	if req.Input < 0 || req.Output < 0 || req.Cached < 0 || req.Reasoning < 0 {
		writeDomainError(w, http.StatusBadRequest,
			domain.NewError(domain.CodeOrchestratorError, "token counts must be non-negative"))
		return
	}

	breakdown, err := h.pricing.Calculate(id, req.usage())
	if err != nil {
		writeDomainError(w, http.StatusNotFound, domain.AsError(err))
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}
