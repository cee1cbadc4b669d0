package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/database"
)

type HealthResponse struct {
	Status   string                   `json:"status"`
	Services map[string]ServiceHealth `json:"services"`
}

type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthHandler reports liveness and readiness. Redis going away degrades
// health but not readiness: the limiter fails open and conversation context
// falls back to memory, so the API keeps serving.
type HealthHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewHealthHandler(db *gorm.DB, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient}
}

// Health reports dependency health
// @Summary Health check
// @Description Returns per-dependency health; degraded when any dependency is down
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:   "ok",
		Services: make(map[string]ServiceHealth),
	}

	if database.IsHealthy(h.db) {
		response.Services["database"] = ServiceHealth{Status: "healthy"}
	} else {
		response.Services["database"] = ServiceHealth{Status: "unhealthy", Message: "database connection failed"}
		response.Status = "degraded"
	}

	if h.redisHealthy(r) {
		response.Services["redis"] = ServiceHealth{Status: "healthy"}
	} else {
		response.Services["redis"] = ServiceHealth{Status: "unhealthy", Message: "redis connection failed"}
		response.Status = "degraded"
	}

	status := http.StatusOK
	if response.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// Ready reports whether the instance can take traffic
// @Summary Readiness check
// @Description Ready when the database answers; Redis is optional for serving
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /ready [get]
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if !database.IsHealthy(h.db) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"error":  "database not ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *HealthHandler) redisHealthy(r *http.Request) bool {
	if h.redis == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	return h.redis.Ping(ctx).Err() == nil
}
