package registry

import (
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/providers"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/pkg/circuitbreaker"
)

// snapshot is the immutable model/adapter view readers dereference. Reload
// swaps the whole snapshot; readers never see a partial catalog.
type snapshot struct {
	models   map[string]domain.Model
	adapters map[string]providers.Adapter
	ordered  []domain.Model
}

// Registry owns the routable model fleet. Reads are lock-free off an atomic
// snapshot; health bookkeeping lives beside it so candidate filtering stays
// cheap.
type Registry struct {
	logger   *zap.Logger
	breakers *circuitbreaker.Manager
	health   *healthTracker

	current atomic.Pointer[snapshot]
}

func New(logger *zap.Logger) *Registry {
	r := &Registry{
		logger:   logger.Named("registry"),
		breakers: circuitbreaker.NewManager(3, 30*time.Second),
		health:   newHealthTracker(3),
	}
	r.current.Store(&snapshot{
		models:   map[string]domain.Model{},
		adapters: map[string]providers.Adapter{},
	})
	return r
}

// NewFromConfig builds the registry with one simulated adapter per catalog
// entry. Families without an API key still register; their adapters report
// unhealthy so listings skip them.
func NewFromConfig(cfg *config.Config, logger *zap.Logger, opts ...providers.SimulatedOption) (*Registry, error) {
	entries := cfg.Models
	if len(entries) == 0 {
		entries = config.DefaultModels()
	}

	models := make([]domain.Model, 0, len(entries))
	adapters := make(map[string]providers.Adapter, len(entries))
	for _, mc := range entries {
		model := domain.Model{
			ID:               mc.ID,
			Provider:         domain.ProviderName(mc.Provider),
			Tier:             mc.Tier,
			Capabilities:     mc.Capabilities,
			PriorityKeywords: mc.PriorityKeywords,
			LatencyHintMS:    mc.LatencyHintMS,
			MaxTokens:        mc.MaxTokens,
		}
		models = append(models, model)
		creds := cfg.Providers.For(mc.Provider)
		adapters[mc.ID] = providers.NewSimulated(model, creds.APIKey, opts...)
	}

	r := New(logger)
	if err := r.Load(models, adapters); err != nil {
		return nil, err
	}
	return r, nil
}

// Load validates and atomically installs a new catalog. It serves both
// startup and explicit reload.
func (r *Registry) Load(models []domain.Model, adapters map[string]providers.Adapter) error {
	next := &snapshot{
		models:   make(map[string]domain.Model, len(models)),
		adapters: make(map[string]providers.Adapter, len(models)),
		ordered:  make([]domain.Model, 0, len(models)),
	}

	for _, m := range models {
		if m.ID == "" {
			return domain.NewError(domain.CodeModelUnavailable, "model with empty id in catalog")
		}
		if _, dup := next.models[m.ID]; dup {
			return domain.Errorf(domain.CodeModelUnavailable, "duplicate model id %q in catalog", m.ID)
		}
		if !m.Provider.Valid() {
			return domain.Errorf(domain.CodeModelUnavailable, "model %q has unknown provider %q", m.ID, m.Provider)
		}
		if !domain.ValidTier(m.Tier) {
			return domain.Errorf(domain.CodeModelUnavailable, "model %q has tier %d outside [%d,%d]", m.ID, m.Tier, domain.MinTier, domain.MaxTier)
		}
		adapter, ok := adapters[m.ID]
		if !ok || adapter == nil {
			return domain.Errorf(domain.CodeModelUnavailable, "model %q has no adapter", m.ID)
		}
		next.models[m.ID] = m
		next.adapters[m.ID] = adapter
		next.ordered = append(next.ordered, m)
	}

	sort.Slice(next.ordered, func(i, j int) bool {
		if next.ordered[i].Tier != next.ordered[j].Tier {
			return next.ordered[i].Tier < next.ordered[j].Tier
		}
		return next.ordered[i].ID < next.ordered[j].ID
	})

	r.current.Store(next)
	r.logger.Info("model catalog loaded", zap.Int("models", len(next.ordered)))
	return nil
}

// Get returns the model and its adapter regardless of health; callers that
// care use IsHealthy or ListModels.
func (r *Registry) Get(modelID string) (domain.Model, providers.Adapter, error) {
	snap := r.current.Load()
	m, ok := snap.models[modelID]
	if !ok {
		return domain.Model{}, nil, domain.Errorf(domain.CodeModelUnavailable, "model %q not registered", modelID)
	}
	return m, snap.adapters[modelID], nil
}

// ListModels returns models whose adapter is healthy or has not yet been
// probed, ordered by tier then id.
func (r *Registry) ListModels() []domain.Model {
	snap := r.current.Load()
	out := make([]domain.Model, 0, len(snap.ordered))
	for _, m := range snap.ordered {
		if r.healthyIn(snap, m.ID) {
			out = append(out, m)
		}
	}
	return out
}

// AllModels returns the full catalog including unhealthy entries.
func (r *Registry) AllModels() []domain.Model {
	snap := r.current.Load()
	out := make([]domain.Model, len(snap.ordered))
	copy(out, snap.ordered)
	return out
}

// HealthyByTier buckets healthy models per tier for the router.
func (r *Registry) HealthyByTier() map[int][]domain.Model {
	snap := r.current.Load()
	out := make(map[int][]domain.Model)
	for _, m := range snap.ordered {
		if r.healthyIn(snap, m.ID) {
			out[m.Tier] = append(out[m.Tier], m)
		}
	}
	return out
}

// IsHealthy combines the adapter's own view, the consecutive-failure
// tracker, and the circuit breaker.
func (r *Registry) IsHealthy(modelID string) bool {
	return r.healthyIn(r.current.Load(), modelID)
}

func (r *Registry) healthyIn(snap *snapshot, modelID string) bool {
	adapter, ok := snap.adapters[modelID]
	if !ok {
		return false
	}
	if !adapter.Healthy() {
		return false
	}
	if !r.health.healthy(modelID) {
		return false
	}
	return !r.breakers.IsOpen(modelID)
}

// RecordSuccess feeds the breaker and failure tracker after a provider call.
func (r *Registry) RecordSuccess(modelID string) {
	r.breakers.RecordSuccess(modelID)
	r.health.recordSuccess(modelID)
}

func (r *Registry) RecordFailure(modelID string) {
	r.breakers.RecordFailure(modelID)
	if unhealthy := r.health.recordFailure(modelID); unhealthy {
		r.logger.Warn("model marked unhealthy after consecutive failures",
			zap.String("model", modelID))
	}
}

// ProbeHealth re-reads every adapter's cached health and clears tracker
// state for adapters that recovered. Used by the registry sync loop.
func (r *Registry) ProbeHealth() {
	snap := r.current.Load()
	for id, adapter := range snap.adapters {
		if adapter.Healthy() {
			r.health.reset(id)
		}
	}
}

func (r *Registry) Breakers() *circuitbreaker.Manager { return r.breakers }
