// Package trace records analysis snapshots, rolling model metrics, and
// daily cost rollups. Sink failures are reported to callers but the
// orchestrator invokes sinks off the request path, so a broken sink never
// delays or fails a request.
package trace

import (
	"context"
	"time"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
)

// AnalysisRecord is the per-request routing trace.
type AnalysisRecord struct {
	RequestID string               `json:"request_id"`
	TaskType  string               `json:"task_type"`
	Analysis  domain.QueryAnalysis `json:"analysis"`
	ModelID   string               `json:"model_id"`
	Tier      int                  `json:"tier"`
	Escalated bool                 `json:"escalated,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// ModelMetrics are rolling per-model counters.
type ModelMetrics struct {
	Requests       int64   `json:"requests"`
	Successes      int64   `json:"successes"`
	Failures       int64   `json:"failures"`
	TotalLatencyMS int64   `json:"total_latency_ms"`
	TotalCost      float64 `json:"total_cost"`
}

// AvgLatencyMS is the mean request latency, zero when no requests landed.
func (m ModelMetrics) AvgLatencyMS() float64 {
	if m.Requests == 0 {
		return 0
	}
	return float64(m.TotalLatencyMS) / float64(m.Requests)
}

// SuccessRate is in [0,1], one when no requests landed.
func (m ModelMetrics) SuccessRate() float64 {
	if m.Requests == 0 {
		return 1
	}
	return float64(m.Successes) / float64(m.Requests)
}

// DailyCosts is one day's rollup.
type DailyCosts struct {
	Date      string             `json:"date"`
	Requests  int64              `json:"requests"`
	TotalCost float64            `json:"total_cost"`
	PerModel  map[string]float64 `json:"per_model"`
}

// Snapshot is the live view served by the metrics endpoint.
type Snapshot struct {
	GeneratedAt time.Time               `json:"generated_at"`
	Models      map[string]ModelMetrics `json:"models"`
	Today       DailyCosts              `json:"today"`
}

// Sink is the trace store contract.
type Sink interface {
	LogAnalysis(ctx context.Context, rec AnalysisRecord) error
	UpdateModelMetrics(ctx context.Context, modelID string, latencyMS int64, cost float64, success bool) error
	TrackError(ctx context.Context, kind, message string, fields map[string]string) error
	UpdateDailyCosts(ctx context.Context) error
	RealTimeMetrics(ctx context.Context) (*Snapshot, error)
}

// NoopSink satisfies Sink and discards everything. Used when tracing is
// disabled.
type NoopSink struct{}

func NewNoopSink() *NoopSink { return &NoopSink{} }

func (NoopSink) LogAnalysis(context.Context, AnalysisRecord) error { return nil }

func (NoopSink) UpdateModelMetrics(context.Context, string, int64, float64, bool) error {
	return nil
}

func (NoopSink) TrackError(context.Context, string, string, map[string]string) error {
	return nil
}

func (NoopSink) UpdateDailyCosts(context.Context) error { return nil }

func (NoopSink) RealTimeMetrics(context.Context) (*Snapshot, error) {
	return &Snapshot{
		GeneratedAt: time.Now(),
		Models:      map[string]ModelMetrics{},
		Today:       DailyCosts{Date: time.Now().UTC().Format("2006-01-02"), PerModel: map[string]float64{}},
	}, nil
}
