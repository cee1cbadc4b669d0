package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/collab"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/orchestrator"
)

// OrchestratorHandler serves the two execution surfaces: single-model
// process and collaborative coding sessions.
type OrchestratorHandler struct {
	logger   *zap.Logger
	cfg      *config.Config
	service  *orchestrator.Service
	sessions *collab.SessionStore
}

func NewOrchestratorHandler(logger *zap.Logger, cfg *config.Config, svc *orchestrator.Service, sessions *collab.SessionStore) *OrchestratorHandler {
	return &OrchestratorHandler{
		logger:   logger,
		cfg:      cfg,
		service:  svc,
		sessions: sessions,
	}
}

// validateRequest enforces the request contract before the orchestrator
// sees it. A nil return means the request is admissible.
func (h *OrchestratorHandler) validateRequest(req *domain.Request) *domain.Error {
	if strings.TrimSpace(req.Prompt) == "" {
		return domain.NewError(domain.CodeOrchestratorError, "prompt is required")
	}
	if max := h.cfg.Analyzer.MaxPromptChars; max > 0 && len(req.Prompt) > max {
		return domain.Errorf(domain.CodeOrchestratorError, "prompt exceeds %d characters", max)
	}
	taskType, err := domain.ParseTaskType(string(req.TaskType))
	if err != nil {
		return domain.AsError(err)
	}
	req.TaskType = taskType
	if req.PreferredTier != nil && (*req.PreferredTier < 0 || *req.PreferredTier > 4) {
		return domain.NewError(domain.CodeOrchestratorError, "preferred_tier must be between 0 and 4")
	}
	return nil
}

// Process runs one request through classification, routing, and execution
// @Summary Process a request
// @Description Routes the prompt to the cheapest capable tier and returns the result with token usage and cost
// @Tags Orchestrator
// @Accept json
// @Produce json
// @Param request body domain.Request true "Request to process"
// @Success 200 {object} domain.Response
// @Failure 400 {object} domain.Response
// @Failure 402 {object} domain.Response
// @Failure 429 {object} domain.Response
// @Failure 503 {object} domain.Response
// @Router /v1/process [post]
func (h *OrchestratorHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req domain.Request
	if derr := decodeBody(r, &req); derr != nil {
		writeDomainError(w, http.StatusBadRequest, derr)
		return
	}
	if derr := h.validateRequest(&req); derr != nil {
		writeDomainError(w, http.StatusBadRequest, derr)
		return
	}

	resp := h.service.Process(r.Context(), &req)
	status := http.StatusOK
	if !resp.Success && resp.Error != nil {
		status = statusFor(resp.Error.Code)
	}
	writeJSON(w, status, resp)
}
