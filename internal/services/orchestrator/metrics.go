package orchestrator

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orch_requests_total",
			Help: "Processed requests by task type and outcome",
		},
		[]string{"task_type", "status"},
	)

	generationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orch_generations_total",
			Help: "Adapter calls by model, tier and outcome",
		},
		[]string{"model", "tier", "status"},
	)

	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orch_generation_duration_seconds",
			Help:    "Adapter call latency in seconds, retries included",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"model", "tier"},
	)

	generationCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orch_generation_cost_usd_total",
			Help: "Charged cost in USD by model",
		},
		[]string{"model", "tier"},
	)

	generationTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orch_generation_tokens_total",
			Help: "Token consumption by model and bucket",
		},
		[]string{"model", "type"},
	)

	cascadesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orch_cascades_total",
			Help: "Responses redone on a higher tier",
		},
	)

	collabSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orch_collab_sessions_total",
			Help: "Collaborative coding sessions by terminal status",
		},
		[]string{"status"},
	)
)

// observeCall records one adapter invocation on the Prometheus collectors
// and, off the request path, on the trace sink.
func (s *Service) observeCall(m domain.Model, usage domain.TokenUsage, cost float64, latencyMS int64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	tier := strconv.Itoa(m.Tier)

	generationsTotal.WithLabelValues(m.ID, tier, status).Inc()
	generationDuration.WithLabelValues(m.ID, tier).Observe(float64(latencyMS) / 1000)
	if cost > 0 {
		generationCost.WithLabelValues(m.ID, tier).Add(cost)
	}
	for _, bucket := range []struct {
		kind   string
		tokens int
	}{
		{"input", usage.Input},
		{"output", usage.Output},
		{"cached", usage.Cached},
		{"reasoning", usage.Reasoning},
	} {
		if bucket.tokens > 0 {
			generationTokens.WithLabelValues(m.ID, bucket.kind).Add(float64(bucket.tokens))
		}
	}

	s.async(func(ctx context.Context) {
		_ = s.trace.UpdateModelMetrics(ctx, m.ID, latencyMS, cost, success)
	})
}
