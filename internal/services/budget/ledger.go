// Package budget admits requests against the monthly budget and applies
// actuals to the ledger. The in-memory ledger is authoritative for
// admission; Postgres rows written by the worker rebuild it on restart.
package budget

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/pricing"
)

// FreeTierState tracks one model's consumed monthly quota.
type FreeTierState struct {
	Period       string `json:"period"`
	RequestsUsed int    `json:"requests_used"`
	TokensUsed   int    `json:"tokens_used"`
}

// TierStatus is one tier's slice of the monthly budget.
type TierStatus struct {
	Spent       float64 `json:"spent"`
	Allocation  float64 `json:"allocation"`
	Budget      float64 `json:"budget"`
	Utilization float64 `json:"utilization"`
}

// Status is a consistent snapshot of the ledger.
type Status struct {
	Period            string                   `json:"period"`
	MonthlyBudget     float64                  `json:"monthly_budget"`
	Spent             float64                  `json:"spent"`
	Remaining         float64                  `json:"remaining"`
	Utilization       float64                  `json:"utilization"`
	Requests          int64                    `json:"requests"`
	PerModel          map[string]float64       `json:"per_model"`
	PerTier           map[int]TierStatus       `json:"per_tier"`
	WarningThreshold  float64                  `json:"warning_threshold"`
	CriticalThreshold float64                  `json:"critical_threshold"`
	Paused            bool                     `json:"paused"`
	FreeTier          map[string]FreeTierState `json:"free_tier,omitempty"`
	GeneratedAt       time.Time                `json:"generated_at"`
}

// Applied reports what one post-request commit did to the ledger.
type Applied struct {
	Period          string
	Cost            float64
	FreeRequestUsed bool
	FreeTokensUsed  int
	Utilization     float64
	CrossedWarning  bool
	CrossedCritical bool
	CapExceeded     bool
}

// Ledger is the monthly accumulator. One mutex guards all fields; nothing
// under it touches the network.
type Ledger struct {
	mu     sync.Mutex
	cfg    config.BudgetConfig
	loc    *time.Location
	logger *zap.Logger
	nowFn  func() time.Time

	period   string
	spent    float64
	requests int64
	perModel map[string]float64
	perTier  map[int]float64
	freeTier map[string]*FreeTierState

	warningFired  bool
	criticalFired bool
	capFired      bool
}

func NewLedger(cfg config.BudgetConfig, logger *zap.Logger) *Ledger {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("invalid budget timezone, falling back to UTC",
			zap.String("timezone", cfg.Timezone))
		loc = time.UTC
	}

	l := &Ledger{
		cfg:      cfg,
		loc:      loc,
		logger:   logger,
		nowFn:    time.Now,
		perModel: make(map[string]float64),
		perTier:  make(map[int]float64),
		freeTier: make(map[string]*FreeTierState),
	}
	l.period = l.periodKey(l.nowFn(), cfg.BudgetResetDay)
	return l
}

// PeriodKey labels the budget month containing t. A month runs from
// resetDay to the day before resetDay of the next month. The worker uses
// the same derivation so its rows land in the ledger's period.
func PeriodKey(t time.Time, resetDay int, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	if resetDay < 1 {
		resetDay = 1
	}
	if t.Day() < resetDay {
		t = t.AddDate(0, -1, 0)
	}
	return t.Format("2006-01")
}

func (l *Ledger) periodKey(t time.Time, resetDay int) string {
	return PeriodKey(t, resetDay, l.loc)
}

// rolloverLocked resets accumulators when the budget month changed.
func (l *Ledger) rolloverLocked() {
	key := l.periodKey(l.nowFn(), l.cfg.BudgetResetDay)
	if key == l.period {
		return
	}

	l.logger.Info("budget period rolled over",
		zap.String("from", l.period), zap.String("to", key))

	l.period = key
	l.spent = 0
	l.requests = 0
	l.perModel = make(map[string]float64)
	l.perTier = make(map[int]float64)
	l.warningFired = false
	l.criticalFired = false
	l.capFired = false
}

// freeTierStateLocked returns the model's quota state for its own reset
// cycle, resetting it when that cycle rolled over.
func (l *Ledger) freeTierStateLocked(modelID string, ft *pricing.FreeTier) *FreeTierState {
	key := l.periodKey(l.nowFn(), ft.ResetDay)
	state, ok := l.freeTier[modelID]
	if !ok || state.Period != key {
		state = &FreeTierState{Period: key}
		l.freeTier[modelID] = state
	}
	return state
}

// consumeFreeTierLocked prices a usage against the model's remaining quota.
// A remaining request grant makes the whole request free; otherwise leftover
// token quota discounts the raw cost proportionally and the minimum charge
// applies only to a billable residue.
func (l *Ledger) consumeFreeTierLocked(modelID string, ft *pricing.FreeTier, usage domain.TokenUsage, raw, floored, minCharge float64) (cost float64, requestUsed bool, freeTokens int) {
	state := l.freeTierStateLocked(modelID, ft)

	if ft.RequestsPerMonth > 0 && state.RequestsUsed < ft.RequestsPerMonth {
		state.RequestsUsed++
		state.TokensUsed += usage.Total
		return 0, true, usage.Total
	}

	if ft.TokensPerMonth > state.TokensUsed && usage.Total > 0 {
		remaining := ft.TokensPerMonth - state.TokensUsed
		freeTokens = usage.Total
		if freeTokens > remaining {
			freeTokens = remaining
		}
		state.TokensUsed += freeTokens

		if freeTokens == usage.Total {
			return 0, false, freeTokens
		}
		fraction := float64(usage.Total-freeTokens) / float64(usage.Total)
		cost = raw * fraction
		if cost > 0 && minCharge > 0 && cost < minCharge {
			cost = minCharge
		}
		return cost, false, freeTokens
	}

	return floored, false, 0
}

// Apply commits one request's actuals: free-tier consumption, monthly and
// per-model/per-tier totals, and threshold crossings, all in one critical
// section.
func (l *Ledger) Apply(modelID string, tier int, breakdown domain.CostBreakdown, row *pricing.Pricing, usage domain.TokenUsage) Applied {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rolloverLocked()

	raw := breakdown.InputCost + breakdown.OutputCost + breakdown.CachedCost + breakdown.ReasoningCost
	cost := breakdown.TotalCost
	var requestUsed bool
	var freeTokens int

	if row != nil && row.FreeTier != nil {
		cost, requestUsed, freeTokens = l.consumeFreeTierLocked(
			modelID, row.FreeTier, usage, raw, breakdown.TotalCost, row.MinimumCharge)
	}

	l.spent += cost
	l.requests++
	l.perModel[modelID] += cost
	l.perTier[tier] += cost

	applied := Applied{
		Period:          l.period,
		Cost:            cost,
		FreeRequestUsed: requestUsed,
		FreeTokensUsed:  freeTokens,
		Utilization:     l.utilizationLocked(),
	}

	if !l.warningFired && applied.Utilization >= l.cfg.WarningThreshold {
		l.warningFired = true
		applied.CrossedWarning = true
	}
	if !l.criticalFired && applied.Utilization >= l.cfg.CriticalThreshold {
		l.criticalFired = true
		applied.CrossedCritical = true
	}
	if !l.capFired && applied.Utilization >= 1 {
		l.capFired = true
		applied.CapExceeded = true
	}
	return applied
}

func (l *Ledger) utilizationLocked() float64 {
	if l.cfg.MonthlyBudget <= 0 {
		return 0
	}
	return l.spent / l.cfg.MonthlyBudget
}

// Utilization never caps at 1 so an overshoot stays visible.
func (l *Ledger) Utilization() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()
	return l.utilizationLocked()
}

// ProjectedUtilization is the utilization after a hypothetical spend.
func (l *Ledger) ProjectedUtilization(cost float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()
	if l.cfg.MonthlyBudget <= 0 {
		return 0
	}
	return (l.spent + cost) / l.cfg.MonthlyBudget
}

// PeekFreeTier reports the remaining quota without consuming it.
func (l *Ledger) PeekFreeTier(modelID string, ft *pricing.FreeTier) (requestsRemaining, tokensRemaining int) {
	if ft == nil {
		return 0, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	state := l.freeTierStateLocked(modelID, ft)
	requestsRemaining = ft.RequestsPerMonth - state.RequestsUsed
	if requestsRemaining < 0 {
		requestsRemaining = 0
	}
	tokensRemaining = ft.TokensPerMonth - state.TokensUsed
	if tokensRemaining < 0 {
		tokensRemaining = 0
	}
	return requestsRemaining, tokensRemaining
}

// TierRemaining is the fraction of a tier's allocated budget still unspent,
// in [0,1]. Tiers without an allocation weight are unconstrained.
func (l *Ledger) TierRemaining(tier int) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()

	weight, ok := l.cfg.TierAllocation[tierKey(tier)]
	if !ok || weight <= 0 || l.cfg.MonthlyBudget <= 0 {
		return 1
	}

	tierBudget := weight * l.cfg.MonthlyBudget
	remaining := (tierBudget - l.perTier[tier]) / tierBudget
	if remaining < 0 {
		return 0
	}
	if remaining > 1 {
		return 1
	}
	return remaining
}

func tierKey(tier int) string {
	return strconv.Itoa(tier)
}

// Snapshot returns a consistent copy of the ledger.
func (l *Ledger) Snapshot() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()

	util := l.utilizationLocked()
	status := Status{
		Period:            l.period,
		MonthlyBudget:     l.cfg.MonthlyBudget,
		Spent:             l.spent,
		Remaining:         l.cfg.MonthlyBudget - l.spent,
		Utilization:       util,
		Requests:          l.requests,
		PerModel:          make(map[string]float64, len(l.perModel)),
		PerTier:           make(map[int]TierStatus, len(l.perTier)),
		WarningThreshold:  l.cfg.WarningThreshold,
		CriticalThreshold: l.cfg.CriticalThreshold,
		Paused:            l.cfg.AutoPauseAtLimit && util >= 1,
		FreeTier:          make(map[string]FreeTierState, len(l.freeTier)),
		GeneratedAt:       time.Now(),
	}

	for id, c := range l.perModel {
		status.PerModel[id] = c
	}
	for tier, spent := range l.perTier {
		ts := TierStatus{Spent: spent}
		if weight, ok := l.cfg.TierAllocation[tierKey(tier)]; ok && weight > 0 && l.cfg.MonthlyBudget > 0 {
			ts.Allocation = weight
			ts.Budget = weight * l.cfg.MonthlyBudget
			ts.Utilization = spent / ts.Budget
		}
		status.PerTier[tier] = ts
	}
	for id, state := range l.freeTier {
		status.FreeTier[id] = *state
	}
	return status
}

// Hydrate replaces the current period's accumulators, typically from
// Postgres at startup. Threshold flags are derived so alerts already fired
// this month do not fire again.
func (l *Ledger) Hydrate(spent float64, requests int64, perModel map[string]float64, perTier map[int]float64, freeTier map[string]*FreeTierState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rolloverLocked()
	l.spent = spent
	l.requests = requests

	l.perModel = make(map[string]float64, len(perModel))
	for id, c := range perModel {
		l.perModel[id] = c
	}
	l.perTier = make(map[int]float64, len(perTier))
	for tier, c := range perTier {
		l.perTier[tier] = c
	}
	l.freeTier = make(map[string]*FreeTierState, len(freeTier))
	for id, state := range freeTier {
		s := *state
		l.freeTier[id] = &s
	}

	util := l.utilizationLocked()
	l.warningFired = util >= l.cfg.WarningThreshold
	l.criticalFired = util >= l.cfg.CriticalThreshold
	l.capFired = util >= 1
}

// Config returns the active budget settings.
func (l *Ledger) Config() config.BudgetConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// SetConfig swaps the budget settings; the admin update endpoint uses this.
// Fired flags are re-derived against the new thresholds.
func (l *Ledger) SetConfig(cfg config.BudgetConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cfg = cfg
	if loc, err := time.LoadLocation(cfg.Timezone); err == nil {
		l.loc = loc
	}

	util := l.utilizationLocked()
	l.warningFired = util >= cfg.WarningThreshold
	l.criticalFired = util >= cfg.CriticalThreshold
	l.capFired = util >= 1
}
