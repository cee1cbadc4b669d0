package registry

import (
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/providers"
)

// ModelStatus is the monitoring view of one catalog entry.
type ModelStatus struct {
	Model           domain.Model         `json:"model"`
	Healthy         bool                 `json:"healthy"`
	BreakerOpen     bool                 `json:"breaker_open"`
	BreakerFailures int                  `json:"breaker_failures"`
	Stats           providers.UsageStats `json:"stats"`
}

// Status snapshots every model with its health and lifetime stats, ordered
// by tier then id.
func (r *Registry) Status() []ModelStatus {
	snap := r.current.Load()
	out := make([]ModelStatus, 0, len(snap.ordered))
	for _, m := range snap.ordered {
		adapter := snap.adapters[m.ID]
		open, failures := r.breakers.Get(m.ID).State()
		out = append(out, ModelStatus{
			Model:           m,
			Healthy:         r.healthyIn(snap, m.ID),
			BreakerOpen:     open,
			BreakerFailures: failures,
			Stats:           adapter.Stats(),
		})
	}
	return out
}

// StatusFor returns the monitoring view of a single model.
func (r *Registry) StatusFor(modelID string) (ModelStatus, error) {
	m, adapter, err := r.Get(modelID)
	if err != nil {
		return ModelStatus{}, err
	}
	open, failures := r.breakers.Get(modelID).State()
	return ModelStatus{
		Model:           m,
		Healthy:         r.IsHealthy(modelID),
		BreakerOpen:     open,
		BreakerFailures: failures,
		Stats:           adapter.Stats(),
	}, nil
}
