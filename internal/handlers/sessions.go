package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/models"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/usage"
)

// SessionsHandler serves usage session views. Live sessions come from the
// in-process tracker, settled ones from the rows the reconciliation worker
// writes.
type SessionsHandler struct {
	logger  *zap.Logger
	tracker *usage.Tracker
	db      *gorm.DB
}

func NewSessionsHandler(logger *zap.Logger, tracker *usage.Tracker, db *gorm.DB) *SessionsHandler {
	return &SessionsHandler{logger: logger, tracker: tracker, db: db}
}

// sessionView unifies the live and settled session shapes.
type sessionView struct {
	ID                 string            `json:"id"`
	Status             string            `json:"status"`
	Live               bool              `json:"live"`
	StartedAt          time.Time         `json:"started_at"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty"`
	TotalRequests      int64             `json:"total_requests"`
	SuccessfulRequests int64             `json:"successful_requests"`
	FailedRequests     int64             `json:"failed_requests"`
	TotalTokens        int64             `json:"total_tokens"`
	TotalCost          float64           `json:"total_cost"`
	ModelBreakdown     json.RawMessage   `json:"model_breakdown,omitempty"`
	UserMetadata       map[string]string `json:"user_metadata,omitempty"`
}

func liveSessionView(s *usage.Session) sessionView {
	breakdown, _ := json.Marshal(s.ModelBreakdown)
	return sessionView{
		ID:                 s.ID,
		Status:             s.Status,
		Live:               true,
		StartedAt:          s.StartedAt,
		CompletedAt:        s.CompletedAt,
		TotalRequests:      int64(s.TotalRequests),
		SuccessfulRequests: int64(s.SuccessfulRequests),
		FailedRequests:     int64(s.FailedRequests),
		TotalTokens:        int64(s.TotalTokens),
		TotalCost:          s.TotalCost,
		ModelBreakdown:     breakdown,
		UserMetadata:       s.UserMetadata,
	}
}

func settledSessionView(row models.UsageSession) sessionView {
	var metadata map[string]string
	if len(row.UserMetadata) > 0 {
		_ = json.Unmarshal(row.UserMetadata, &metadata)
	}
	return sessionView{
		ID:                 row.SessionKey,
		Status:             row.Status,
		StartedAt:          row.StartedAt,
		CompletedAt:        row.CompletedAt,
		TotalRequests:      row.TotalRequests,
		SuccessfulRequests: row.SuccessfulRequests,
		FailedRequests:     row.FailedRequests,
		TotalTokens:        row.TotalTokens,
		TotalCost:          row.TotalCost,
		ModelBreakdown:     json.RawMessage(row.ModelBreakdown),
		UserMetadata:       metadata,
	}
}

type sessionListResponse struct {
	Sessions []sessionView `json:"sessions"`
	Count    int           `json:"count"`
}

// ListSessions lists usage sessions
// @Summary List usage sessions
// @Description Returns settled sessions newest first; live=true returns the in-process sessions that have not been settled yet
// @Tags Sessions
// @Produce json
// @Param status query string false "Filter by status"
// @Param limit query int false "Maximum rows (default 50)"
// @Param live query bool false "Return live in-process sessions instead"
// @Success 200 {object} sessionListResponse
// @Router /v1/sessions [get]
func (h *SessionsHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	if live := r.URL.Query().Get("live"); live == "true" || live == "1" {
		sessions := h.tracker.List()
		views := make([]sessionView, 0, len(sessions))
		for _, s := range sessions {
			views = append(views, liveSessionView(s))
		}
		writeJSON(w, http.StatusOK, sessionListResponse{Sessions: views, Count: len(views)})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeDomainError(w, http.StatusBadRequest,
				domain.NewError(domain.CodeOrchestratorError, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	q := h.db.WithContext(r.Context()).Order("started_at DESC").Limit(limit)
	if status := r.URL.Query().Get("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	var rows []models.UsageSession
	if err := q.Find(&rows).Error; err != nil {
		h.logger.Error("failed to list sessions", zap.Error(err))
		writeDomainError(w, http.StatusInternalServerError,
			domain.NewError(domain.CodeOrchestratorError, "failed to list sessions"))
		return
	}

	views := make([]sessionView, 0, len(rows))
	for _, row := range rows {
		views = append(views, settledSessionView(row))
	}
	writeJSON(w, http.StatusOK, sessionListResponse{Sessions: views, Count: len(views)})
}

// GetSession returns one usage session
// @Summary Get a usage session
// @Description Prefers the live in-process state; falls back to the settled row
// @Tags Sessions
// @Produce json
// @Param id path string true "Session key"
// @Success 200 {object} sessionView
// @Failure 404 {object} domain.Response
// @Router /v1/sessions/{id} [get]
func (h *SessionsHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if live := h.tracker.Get(id); live != nil {
		writeJSON(w, http.StatusOK, liveSessionView(live))
		return
	}

	var row models.UsageSession
	err := h.db.WithContext(r.Context()).Where("session_key = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeDomainError(w, http.StatusNotFound,
			domain.Errorf(domain.CodeOrchestratorError, "unknown session %q", id))
		return
	}
	if err != nil {
		h.logger.Error("failed to load session", zap.String("session_key", id), zap.Error(err))
		writeDomainError(w, http.StatusInternalServerError,
			domain.NewError(domain.CodeOrchestratorError, "failed to load session"))
		return
	}
	writeJSON(w, http.StatusOK, settledSessionView(row))
}

// CloseSession finalizes a live session
// @Summary Close a usage session
// @Description Marks the live session completed; the settled row is updated when the reconciliation worker drains the queue
// @Tags Sessions
// @Produce json
// @Param id path string true "Session key"
// @Success 200 {object} sessionView
// @Failure 404 {object} domain.Response
// @Router /v1/sessions/{id}/close [post]
func (h *SessionsHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if closed := h.tracker.Close(id, false); closed != nil {
		// Stamp the settled row too when it already exists. The worker
		// upsert preserves completed_at once set.
		now := time.Now()
		result := h.db.WithContext(r.Context()).
			Model(&models.UsageSession{}).
			Where("session_key = ? AND status = ?", id, usage.StatusActive).
			Updates(map[string]interface{}{"status": usage.StatusCompleted, "completed_at": now})
		if result.Error != nil {
			h.logger.Warn("failed to stamp settled session row",
				zap.String("session_key", id), zap.Error(result.Error))
		}
		writeJSON(w, http.StatusOK, liveSessionView(closed))
		return
	}

	writeDomainError(w, http.StatusNotFound,
		domain.Errorf(domain.CodeOrchestratorError, "no live session %q", id))
}
