package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/collab"
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients hit this endpoint cross-origin; access control is
	// CORS plus the rate limiter, not the Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

// collaborativeAccepted is the 202 body for async session starts.
type collaborativeAccepted struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
	StreamURL string `json:"stream_url"`
}

// Collaborative starts a collaborative coding session
// @Summary Run a collaborative coding session
// @Description Decomposes the prompt into subtasks, executes them across tiers with quality gates, and returns the finished session. With async=true the session runs in the background and a 202 with polling and stream URLs comes back immediately.
// @Tags Collaborative
// @Accept json
// @Produce json
// @Param async query bool false "Run in the background and return 202"
// @Param request body domain.Request true "Coding request"
// @Success 200 {object} domain.CodingSession
// @Success 202 {object} collaborativeAccepted
// @Failure 400 {object} domain.Response
// @Router /v1/collaborative [post]
func (h *OrchestratorHandler) Collaborative(w http.ResponseWriter, r *http.Request) {
	var req domain.Request
	if derr := decodeBody(r, &req); derr != nil {
		writeDomainError(w, http.StatusBadRequest, derr)
		return
	}
	if derr := h.validateRequest(&req); derr != nil {
		writeDomainError(w, http.StatusBadRequest, derr)
		return
	}

	sessionID := uuid.NewString()

	if async := r.URL.Query().Get("async"); async == "true" || async == "1" {
		go func() {
			// The session outlives the HTTP request on purpose.
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			if _, err := h.service.ProcessCollaborativeWithID(ctx, &req, sessionID); err != nil {
				h.logger.Error("background collaborative session failed",
					zap.String("session_id", sessionID), zap.Error(err))
			}
		}()

		writeJSON(w, http.StatusAccepted, collaborativeAccepted{
			SessionID: sessionID,
			Status:    string(domain.CodingPlanning),
			StatusURL: "/v1/collaborative/" + sessionID,
			StreamURL: "/v1/collaborative/" + sessionID + "/stream",
		})
		return
	}

	session, err := h.service.ProcessCollaborativeWithID(r.Context(), &req, sessionID)
	if err != nil {
		derr := domain.AsError(err)
		writeDomainError(w, statusFor(derr.Code), derr)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// CollaborativeStatus returns the session snapshot
// @Summary Get a collaborative session
// @Description Returns the persisted snapshot of a session: its plan, per-subtask state, metrics, and final review
// @Tags Collaborative
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} domain.CodingSession
// @Failure 404 {object} domain.Response
// @Router /v1/collaborative/{id} [get]
func (h *OrchestratorHandler) CollaborativeStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if h.sessions == nil {
		writeDomainError(w, http.StatusNotFound,
			domain.NewError(domain.CodeOrchestratorError, "session persistence is disabled"))
		return
	}

	session, err := h.sessions.Load(r.Context(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeDomainError(w, http.StatusNotFound,
			domain.Errorf(domain.CodeOrchestratorError, "unknown collaborative session %q", id))
		return
	}
	if err != nil {
		h.logger.Error("failed to load coding session", zap.String("session_id", id), zap.Error(err))
		writeDomainError(w, http.StatusInternalServerError,
			domain.NewError(domain.CodeOrchestratorError, "failed to load session"))
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// CollaborativeStream streams session progress events
// @Summary Stream session progress over WebSocket
// @Description Upgrades to WebSocket and forwards session events (plan_ready, subtask_done, gate_result, ...) as JSON frames until the session reaches a terminal state. Events before subscribe time are not replayed; use the status endpoint for the current snapshot.
// @Tags Collaborative
// @Param id path string true "Session ID"
// @Success 101 {string} string "Switching Protocols"
// @Router /v1/collaborative/{id}/stream [get]
func (h *OrchestratorHandler) CollaborativeStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Subscribe before upgrading so events fired during the handshake
	// land in the buffer instead of being lost.
	events, cancel := h.service.Hub().Subscribe(id)
	defer cancel()

	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("session_id", id), zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	// A session that already finished publishes nothing more; replay its
	// terminal event from the snapshot and close.
	if evt, ok := h.terminalEvent(r.Context(), id); ok {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		_ = conn.WriteJSON(evt)
		h.closeStream(conn)
		return
	}

	// Reader goroutine: we never expect client frames, but reading is how
	// gorilla surfaces close frames and keeps pong handling alive.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-clientGone:
			return
		case <-r.Context().Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if writeErr := conn.WriteJSON(evt); writeErr != nil {
				return
			}
			if evt.Type == collab.EventSessionCompleted || evt.Type == collab.EventSessionFailed {
				h.closeStream(conn)
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(streamWriteTimeout)
			if pingErr := conn.WriteControl(websocket.PingMessage, nil, deadline); pingErr != nil {
				return
			}
		}
	}
}

// terminalEvent rebuilds the closing event for a session that already
// reached a terminal status.
func (h *OrchestratorHandler) terminalEvent(ctx context.Context, id string) (collab.SessionEvent, bool) {
	if h.sessions == nil {
		return collab.SessionEvent{}, false
	}
	session, err := h.sessions.Load(ctx, id)
	if err != nil {
		return collab.SessionEvent{}, false
	}

	switch session.Status {
	case domain.CodingCompleted:
		return collab.SessionEvent{
			SessionID: id,
			Type:      collab.EventSessionCompleted,
			Score:     session.Metrics.QualityScore,
			Timestamp: time.Now(),
		}, true
	case domain.CodingFailed:
		return collab.SessionEvent{
			SessionID: id,
			Type:      collab.EventSessionFailed,
			Message:   session.Error,
			Timestamp: time.Now(),
		}, true
	}
	return collab.SessionEvent{}, false
}

func (h *OrchestratorHandler) closeStream(conn *websocket.Conn) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}
