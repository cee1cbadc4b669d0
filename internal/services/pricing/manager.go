package pricing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
)

// Repository persists pricing overrides.
type Repository interface {
	List(ctx context.Context) (map[string]*Pricing, error)
	Upsert(ctx context.Context, modelID string, p *Pricing) error
}

// Invalidator drops a cached pricing entry after an update.
type Invalidator interface {
	Invalidate(ctx context.Context, modelID string) error
}

// Manager serves pricing rows with override precedence
// database > config > default. Reads are lock-free of the network: the
// three layers live in memory and reload replaces them under the mutex.
type Manager struct {
	mu              sync.RWMutex
	defaults        map[string]*Pricing
	configOverrides map[string]*Pricing
	dbOverrides     map[string]*Pricing

	repo        Repository
	invalidator Invalidator
	logger      *zap.Logger
}

func NewManager(logger *zap.Logger) (*Manager, error) {
	defaults, err := loadDefaultTable()
	if err != nil {
		return nil, err
	}
	return &Manager{
		defaults:        defaults,
		configOverrides: make(map[string]*Pricing),
		dbOverrides:     make(map[string]*Pricing),
		logger:          logger,
	}, nil
}

// ApplyConfigOverrides installs per-model pricing from the model catalog.
func (m *Manager) ApplyConfigOverrides(models []config.ModelConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mc := range models {
		if mc.Pricing == nil {
			continue
		}
		p := &Pricing{
			InputPer1K:     mc.Pricing.InputPer1K,
			OutputPer1K:    mc.Pricing.OutputPer1K,
			CachedPer1K:    mc.Pricing.CachedPer1K,
			ReasoningPer1K: mc.Pricing.ReasoningPer1K,
			MinimumCharge:  mc.Pricing.MinimumCharge,
			Source:         SourceConfigOverride,
			LastUpdated:    time.Now(),
		}
		if ft := mc.Pricing.FreeTier; ft != nil {
			p.FreeTier = &FreeTier{
				RequestsPerMonth: ft.RequestsPerMonth,
				TokensPerMonth:   ft.TokensPerMonth,
				ResetDay:         ft.ResetDay,
			}
		}
		m.configOverrides[mc.ID] = p
	}
}

func (m *Manager) SetRepository(repo Repository) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repo = repo
}

func (m *Manager) SetInvalidator(inv Invalidator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidator = inv
}

// LoadDatabaseOverrides refreshes the top precedence layer from storage.
// Called at startup and by the registry sync loop.
func (m *Manager) LoadDatabaseOverrides(ctx context.Context) error {
	m.mu.RLock()
	repo := m.repo
	m.mu.RUnlock()
	if repo == nil {
		return nil
	}

	rows, err := repo.List(ctx)
	if err != nil {
		return err
	}
	for _, p := range rows {
		p.Source = SourceDBOverride
	}

	m.mu.Lock()
	m.dbOverrides = rows
	m.mu.Unlock()

	m.logger.Debug("pricing overrides loaded", zap.Int("count", len(rows)))
	return nil
}

// GetPricing returns the effective row for a model, or nil when unknown.
func (m *Manager) GetPricing(modelID string) *Pricing {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.dbOverrides[modelID]; ok {
		return p.clone()
	}
	if p, ok := m.configOverrides[modelID]; ok {
		if def, hasDefault := m.defaults[modelID]; hasDefault {
			return mergeWithDefault(p, def)
		}
		return p.clone()
	}
	if p, ok := m.defaults[modelID]; ok {
		return p.clone()
	}
	return nil
}

// mergeWithDefault fills zero-valued override fields from the default row so
// partial overrides keep the rest of the pricing intact.
func mergeWithDefault(override, def *Pricing) *Pricing {
	merged := override.clone()
	if merged.InputPer1K == 0 {
		merged.InputPer1K = def.InputPer1K
	}
	if merged.OutputPer1K == 0 {
		merged.OutputPer1K = def.OutputPer1K
	}
	if merged.CachedPer1K == 0 {
		merged.CachedPer1K = def.CachedPer1K
	}
	if merged.ReasoningPer1K == 0 {
		merged.ReasoningPer1K = def.ReasoningPer1K
	}
	if merged.MinimumCharge == 0 {
		merged.MinimumCharge = def.MinimumCharge
	}
	if merged.FreeTier == nil && def.FreeTier != nil {
		ft := *def.FreeTier
		merged.FreeTier = &ft
	}
	return merged
}

// Calculate prices a usage against a model's effective row. Given the same
// row and usage the result is deterministic.
func (m *Manager) Calculate(modelID string, usage domain.TokenUsage) (domain.CostBreakdown, error) {
	p := m.GetPricing(modelID)
	if p == nil {
		return domain.ZeroCost(), domain.Errorf(domain.CodeModelUnavailable,
			"no pricing for model %q", modelID)
	}

	breakdown := domain.CostBreakdown{
		InputCost:     float64(usage.Input) / 1000 * p.InputPer1K,
		OutputCost:    float64(usage.Output) / 1000 * p.OutputPer1K,
		CachedCost:    float64(usage.Cached) / 1000 * p.CachedPer1K,
		ReasoningCost: float64(usage.Reasoning) / 1000 * p.ReasoningPer1K,
		Currency:      "USD",
		CalculatedAt:  time.Now(),
	}
	breakdown.TotalCost = breakdown.InputCost + breakdown.OutputCost +
		breakdown.CachedCost + breakdown.ReasoningCost

	if p.MinimumCharge > 0 && breakdown.TotalCost < p.MinimumCharge {
		breakdown.TotalCost = p.MinimumCharge
	}
	return breakdown, nil
}

// Estimate prices a token estimate, used for pre-flight admission.
func (m *Manager) Estimate(modelID string, est domain.TokenEstimate) (domain.CostBreakdown, error) {
	return m.Calculate(modelID, domain.NewTokenUsage(est.Input, est.Output))
}

// Compare prices the same usage across several models. An unknown id fails
// the whole call.
func (m *Manager) Compare(modelIDs []string, usage domain.TokenUsage) (map[string]domain.CostBreakdown, error) {
	out := make(map[string]domain.CostBreakdown, len(modelIDs))
	for _, id := range modelIDs {
		breakdown, err := m.Calculate(id, usage)
		if err != nil {
			return nil, err
		}
		out[id] = breakdown
	}
	return out, nil
}

// UpdatePricing persists a new override, promotes it in memory, and drops
// any cached copy.
func (m *Manager) UpdatePricing(ctx context.Context, modelID string, p *Pricing) error {
	p.Source = SourceDBOverride
	p.LastUpdated = time.Now()

	m.mu.RLock()
	repo := m.repo
	inv := m.invalidator
	m.mu.RUnlock()

	if repo != nil {
		if err := repo.Upsert(ctx, modelID, p); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.dbOverrides[modelID] = p.clone()
	m.mu.Unlock()

	if inv != nil {
		if err := inv.Invalidate(ctx, modelID); err != nil {
			m.logger.Warn("pricing cache invalidation failed",
				zap.String("model", modelID), zap.Error(err))
		}
	}
	return nil
}

// ListModels maps every known model id to its effective pricing source.
func (m *Manager) ListModels() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string)
	for id := range m.defaults {
		out[id] = SourceDefault
	}
	for id := range m.configOverrides {
		out[id] = SourceConfigOverride
	}
	for id := range m.dbOverrides {
		out[id] = SourceDBOverride
	}
	return out
}
