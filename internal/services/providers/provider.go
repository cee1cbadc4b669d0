package providers

import (
	"context"
	"time"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
)

// Options carries the per-call generation knobs every adapter understands.
type Options struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	Timeout     time.Duration
	Metadata    map[string]string
}

// Result is what an adapter hands back on success. Cost is attached later by
// the pricing layer; adapters only know tokens and wall time.
type Result struct {
	Text         string
	Usage        domain.TokenUsage
	FinishReason string
	LatencyMS    int64
}

// UsageStats accumulates process-lifetime totals for one adapter.
type UsageStats struct {
	Requests       int64     `json:"requests"`
	Successes      int64     `json:"successes"`
	Failures       int64     `json:"failures"`
	TotalTokens    int64     `json:"total_tokens"`
	TotalLatencyMS int64     `json:"total_latency_ms"`
	LastUsed       time.Time `json:"last_used,omitempty"`
}

func (s UsageStats) AvgLatencyMS() int64 {
	if s.Requests == 0 {
		return 0
	}
	return s.TotalLatencyMS / s.Requests
}

// Adapter is the uniform provider contract. Generate must honor ctx and
// opts.Timeout; Healthy must be cheap and may serve a cached value.
type Adapter interface {
	Generate(ctx context.Context, prompt string, opts Options) (*Result, error)
	Healthy() bool
	Stats() UsageStats
	ModelID() string
	Family() string
}
