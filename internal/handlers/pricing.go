package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/pricing"
)

// PricingHandler serves pricing reads, comparisons, and runtime overrides.
type PricingHandler struct {
	logger  *zap.Logger
	pricing *pricing.Manager
}

func NewPricingHandler(logger *zap.Logger, pm *pricing.Manager) *PricingHandler {
	return &PricingHandler{logger: logger, pricing: pm}
}

// compareRequest prices one usage across several models.
type compareRequest struct {
	ModelIDs []string `json:"model_ids"`
	calculateRequest
}

type compareResponse struct {
	Costs    map[string]domain.CostBreakdown `json:"costs"`
	Cheapest string                          `json:"cheapest"`
}

// ComparePricing compares cost across models
// @Summary Compare cost across models
// @Description Prices the same token usage against several models and names the cheapest
// @Tags Pricing
// @Accept json
// @Produce json
// @Param request body compareRequest true "Models and token usage"
// @Success 200 {object} compareResponse
// @Failure 400 {object} domain.Response
// @Failure 404 {object} domain.Response
// @Router /v1/pricing/compare [post]
func (h *PricingHandler) ComparePricing(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if derr := decodeBody(r, &req); derr != nil {
		writeDomainError(w, http.StatusBadRequest, derr)
		return
	}
	if len(req.ModelIDs) == 0 {
		writeDomainError(w, http.StatusBadRequest,
			domain.NewError(domain.CodeOrchestratorError, "model_ids is required"))
		return
	}

	costs, err := h.pricing.Compare(req.ModelIDs, req.usage())
	if err != nil {
		writeDomainError(w, http.StatusNotFound, domain.AsError(err))
		return
	}

	cheapest := ""
	for id, breakdown := range costs {
		if cheapest == "" || breakdown.TotalCost < costs[cheapest].TotalCost {
			cheapest = id
		}
	}
	writeJSON(w, http.StatusOK, compareResponse{Costs: costs, Cheapest: cheapest})
}

// GetPricing returns one model's effective pricing
// @Summary Get model pricing
// @Description Returns the effective pricing row after override precedence (database > config > default)
// @Tags Pricing
// @Produce json
// @Param id path string true "Model ID"
// @Success 200 {object} pricing.Pricing
// @Failure 404 {object} domain.Response
// @Router /v1/pricing/{id} [get]
func (h *PricingHandler) GetPricing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p := h.pricing.GetPricing(id)
	if p == nil {
		writeDomainError(w, http.StatusNotFound,
			domain.Errorf(domain.CodeModelUnavailable, "no pricing for model %q", id))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// updatePricingRequest carries the override rates. Zero-valued optional
// rates clear the corresponding charge.
type updatePricingRequest struct {
	InputPer1K     float64           `json:"input_per_1k"`
	OutputPer1K    float64           `json:"output_per_1k"`
	CachedPer1K    float64           `json:"cached_per_1k,omitempty"`
	ReasoningPer1K float64           `json:"reasoning_per_1k,omitempty"`
	MinimumCharge  float64           `json:"minimum_charge,omitempty"`
	FreeTier       *pricing.FreeTier `json:"free_tier,omitempty"`
}

// UpdatePricing installs a runtime pricing override
// @Summary Override model pricing
// @Description Persists a database pricing override for the model and promotes it immediately; other replicas pick it up through the registry sync loop
// @Tags Pricing
// @Accept json
// @Produce json
// @Param id path string true "Model ID"
// @Param request body updatePricingRequest true "Pricing override"
// @Success 200 {object} pricing.Pricing
// @Failure 400 {object} domain.Response
// @Failure 500 {object} domain.Response
// @Router /v1/pricing/{id} [put]
func (h *PricingHandler) UpdatePricing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updatePricingRequest
	if derr := decodeBody(r, &req); derr != nil {
		writeDomainError(w, http.StatusBadRequest, derr)
		return
	}
	if req.InputPer1K < 0 || req.OutputPer1K < 0 || req.CachedPer1K < 0 ||
		req.ReasoningPer1K < 0 || req.MinimumCharge < 0 {
		writeDomainError(w, http.StatusBadRequest,
			domain.NewError(domain.CodeOrchestratorError, "pricing rates must be non-negative"))
		return
	}

	p := &pricing.Pricing{
		InputPer1K:     req.InputPer1K,
		OutputPer1K:    req.OutputPer1K,
		CachedPer1K:    req.CachedPer1K,
		ReasoningPer1K: req.ReasoningPer1K,
		MinimumCharge:  req.MinimumCharge,
		FreeTier:       req.FreeTier,
	}
	if err := h.pricing.UpdatePricing(r.Context(), id, p); err != nil {
		h.logger.Error("pricing update failed", zap.String("model", id), zap.Error(err))
		writeDomainError(w, http.StatusInternalServerError,
			domain.NewError(domain.CodeOrchestratorError, "failed to persist pricing override"))
		return
	}
	writeJSON(w, http.StatusOK, h.pricing.GetPricing(id))
}
