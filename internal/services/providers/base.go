package providers

import (
	"sync/atomic"
	"time"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
)

// BaseAdapter carries identity, cached health, and lifetime counters.
// Concrete adapters embed it and call record* around each Generate.
type BaseAdapter struct {
	modelID string
	family  string

	healthy   atomic.Bool
	requests  atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
	tokens    atomic.Int64
	latencyMS atomic.Int64
	lastUsed  atomic.Int64
}

func NewBaseAdapter(modelID, family string) *BaseAdapter {
	b := &BaseAdapter{modelID: modelID, family: family}
	b.healthy.Store(true)
	return b
}

func (b *BaseAdapter) ModelID() string { return b.modelID }
func (b *BaseAdapter) Family() string  { return b.family }

func (b *BaseAdapter) Healthy() bool { return b.healthy.Load() }

func (b *BaseAdapter) SetHealthy(healthy bool) { b.healthy.Store(healthy) }

func (b *BaseAdapter) recordSuccess(usage domain.TokenUsage, latencyMS int64) {
	b.requests.Add(1)
	b.successes.Add(1)
	b.tokens.Add(int64(usage.Total))
	b.latencyMS.Add(latencyMS)
	b.lastUsed.Store(time.Now().UnixNano())
}

func (b *BaseAdapter) recordFailure(latencyMS int64) {
	b.requests.Add(1)
	b.failures.Add(1)
	b.latencyMS.Add(latencyMS)
	b.lastUsed.Store(time.Now().UnixNano())
}

func (b *BaseAdapter) Stats() UsageStats {
	s := UsageStats{
		Requests:       b.requests.Load(),
		Successes:      b.successes.Load(),
		Failures:       b.failures.Load(),
		TotalTokens:    b.tokens.Load(),
		TotalLatencyMS: b.latencyMS.Load(),
	}
	if ts := b.lastUsed.Load(); ts > 0 {
		s.LastUsed = time.Unix(0, ts)
	}
	return s
}
