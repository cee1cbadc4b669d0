package budget

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/pricing"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/usage"
)

// Decision is the pre-flight admission verdict.
type Decision struct {
	Approved      bool        `json:"approved"`
	Code          domain.Code `json:"code,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	Warnings      []string    `json:"warnings,omitempty"`
	EstimatedCost float64     `json:"estimated_cost"`
}

// AlertStore persists threshold alerts.
type AlertStore interface {
	Append(ctx context.Context, kind, message string, context map[string]interface{}) error
}

// PostParams carries one finished request into post-processing.
type PostParams struct {
	SessionKey    string
	RequestID     string
	ModelID       string
	Provider      string
	Tier          int
	TaskType      string
	Usage         domain.TokenUsage
	LatencyMS     int64
	Success       bool
	ErrorCode     domain.Code
	Collaborative bool
}

// Controller implements pre-flight admission and post-request accounting.
// It composes the ledger (monthly totals), the usage tracker (sessions),
// the usage queue (persistence), and the alert store.
type Controller struct {
	ledger  *Ledger
	pricing *pricing.Manager
	tracker *usage.Tracker
	queue   *usage.Queue
	alerts  AlertStore
	cache   *Cache
	logger  *zap.Logger
}

type ControllerConfig struct {
	Ledger  *Ledger
	Pricing *pricing.Manager
	Tracker *usage.Tracker
	Queue   *usage.Queue
	Alerts  AlertStore
	Cache   *Cache
	Logger  *zap.Logger
}

func NewController(cfg ControllerConfig) *Controller {
	return &Controller{
		ledger:  cfg.Ledger,
		pricing: cfg.Pricing,
		tracker: cfg.Tracker,
		queue:   cfg.Queue,
		alerts:  cfg.Alerts,
		cache:   cfg.Cache,
		logger:  cfg.Logger,
	}
}

// estimateCost projects a request's cost including any remaining free-tier
// quota, without consuming it.
func (c *Controller) estimateCost(modelID string, est domain.TokenEstimate) (float64, error) {
	breakdown, err := c.pricing.Estimate(modelID, est)
	if err != nil {
		return 0, err
	}

	row := c.pricing.GetPricing(modelID)
	if row == nil || row.FreeTier == nil {
		return breakdown.TotalCost, nil
	}

	requestsRemaining, tokensRemaining := c.ledger.PeekFreeTier(modelID, row.FreeTier)
	if requestsRemaining > 0 {
		return 0, nil
	}

	total := est.Input + est.Output
	if total <= 0 || tokensRemaining <= 0 {
		return breakdown.TotalCost, nil
	}
	if tokensRemaining >= total {
		return 0, nil
	}

	raw := breakdown.InputCost + breakdown.OutputCost + breakdown.CachedCost + breakdown.ReasoningCost
	cost := raw * float64(total-tokensRemaining) / float64(total)
	if cost > 0 && row.MinimumCharge > 0 && cost < row.MinimumCharge {
		cost = row.MinimumCharge
	}
	return cost, nil
}

// PreRequestCheck admits or denies a request before the adapter call.
// Denials: projected cost over max_request_cost, projected session cost
// over max_session_cost, or monthly utilization past the critical
// threshold. Crossing the warning threshold admits with a warning.
func (c *Controller) PreRequestCheck(ctx context.Context, modelID, sessionKey string, est domain.TokenEstimate) *Decision {
	cfg := c.ledger.Config()

	estimatedCost, err := c.estimateCost(modelID, est)
	if err != nil {
		return &Decision{
			Approved: false,
			Code:     domain.CodeOf(err),
			Reason:   err.Error(),
		}
	}

	decision := &Decision{Approved: true, EstimatedCost: estimatedCost}

	if cfg.MaxRequestCost > 0 && estimatedCost > cfg.MaxRequestCost {
		decision.Approved = false
		decision.Code = domain.CodeCostLimitExceeded
		decision.Reason = fmt.Sprintf(
			"projected cost $%.4f exceeds max_request_cost $%.4f",
			estimatedCost, cfg.MaxRequestCost)
		return decision
	}

	if cfg.MaxSessionCost > 0 && sessionKey != "" {
		sessionCost := c.tracker.SessionCost(sessionKey)
		if sessionCost+estimatedCost > cfg.MaxSessionCost {
			decision.Approved = false
			decision.Code = domain.CodeCostLimitExceeded
			decision.Reason = fmt.Sprintf(
				"projected session cost $%.4f exceeds max_session_cost $%.4f",
				sessionCost+estimatedCost, cfg.MaxSessionCost)
			return decision
		}
	}

	projected := c.ledger.ProjectedUtilization(estimatedCost)

	if cfg.AutoPauseAtLimit && c.ledger.Utilization() >= 1 {
		decision.Approved = false
		decision.Code = domain.CodeBudgetExceeded
		decision.Reason = "monthly budget exhausted and auto-pause is enabled"
		return decision
	}

	if projected > cfg.CriticalThreshold {
		decision.Approved = false
		decision.Code = domain.CodeBudgetExceeded
		decision.Reason = fmt.Sprintf(
			"projected monthly utilization %.1f%% exceeds critical threshold %.1f%%",
			projected*100, cfg.CriticalThreshold*100)
		return decision
	}

	if projected >= cfg.WarningThreshold {
		decision.Warnings = append(decision.Warnings, fmt.Sprintf(
			"monthly utilization %.1f%% crosses warning threshold %.1f%%",
			projected*100, cfg.WarningThreshold*100))
	}

	return decision
}

// PostRequestProcessing recomputes cost with actuals and commits it:
// ledger totals and free tier under the ledger lock, the session under its
// per-key lock, then the usage record onto the queue. Alerts fire when this
// request crossed a threshold.
func (c *Controller) PostRequestProcessing(ctx context.Context, params PostParams) (domain.CostBreakdown, error) {
	breakdown, err := c.pricing.Calculate(params.ModelID, params.Usage)
	if err != nil {
		return domain.ZeroCost(), err
	}
	row := c.pricing.GetPricing(params.ModelID)

	// Minimum charges and free-tier grants apply to delivered work only.
	// A failed call that consumed no tokens settles at zero.
	if !params.Success && params.Usage.Total == 0 {
		breakdown = domain.ZeroCost()
		row = nil
	}

	applied := c.ledger.Apply(params.ModelID, params.Tier, breakdown, row, params.Usage)
	breakdown.TotalCost = applied.Cost

	c.tracker.Record(params.SessionKey, usage.RecordParams{
		ModelID:   params.ModelID,
		Usage:     params.Usage,
		Cost:      applied.Cost,
		LatencyMS: params.LatencyMS,
		Success:   params.Success,
		ErrorCode: params.ErrorCode,
	})

	if c.queue != nil {
		record := &usage.Record{
			RequestID:       params.RequestID,
			SessionKey:      params.SessionKey,
			Period:          applied.Period,
			Model:           params.ModelID,
			Provider:        params.Provider,
			Tier:            params.Tier,
			TaskType:        params.TaskType,
			InputTokens:     params.Usage.Input,
			OutputTokens:    params.Usage.Output,
			CachedTokens:    params.Usage.Cached,
			ReasoningTokens: params.Usage.Reasoning,
			TotalTokens:     params.Usage.Total,
			TotalCost:       applied.Cost,
			FreeRequestUsed: applied.FreeRequestUsed,
			FreeTokensUsed:  applied.FreeTokensUsed,
			LatencyMS:       params.LatencyMS,
			Success:         params.Success,
			ErrorCode:       string(params.ErrorCode),
			Collaborative:   params.Collaborative,
		}
		if err := c.queue.Enqueue(ctx, record); err != nil {
			c.logger.Warn("usage record not queued, ledger retains the charge",
				zap.String("request_id", params.RequestID), zap.Error(err))
		}
	}

	c.fireAlerts(ctx, applied)

	if c.cache != nil {
		if err := c.cache.Publish(ctx, c.ledger.Snapshot()); err != nil {
			c.logger.Debug("budget snapshot publish failed", zap.Error(err))
		}
	}

	return breakdown, nil
}

func (c *Controller) fireAlerts(ctx context.Context, applied Applied) {
	if c.alerts == nil {
		return
	}

	alertCtx := map[string]interface{}{
		"utilization": applied.Utilization,
		"period":      c.ledger.Snapshot().Period,
	}

	if applied.CrossedWarning {
		msg := fmt.Sprintf("monthly budget utilization reached %.1f%%", applied.Utilization*100)
		if err := c.alerts.Append(ctx, AlertKindWarning, msg, alertCtx); err != nil {
			c.logger.Warn("warning alert not persisted", zap.Error(err))
		}
		c.logger.Warn("budget warning threshold crossed",
			zap.Float64("utilization", applied.Utilization))
	}
	if applied.CrossedCritical {
		msg := fmt.Sprintf("monthly budget utilization critical at %.1f%%", applied.Utilization*100)
		if err := c.alerts.Append(ctx, AlertKindCritical, msg, alertCtx); err != nil {
			c.logger.Warn("critical alert not persisted", zap.Error(err))
		}
		c.logger.Error("budget critical threshold crossed",
			zap.Float64("utilization", applied.Utilization))
	}
	if applied.CapExceeded {
		msg := fmt.Sprintf("monthly budget exceeded, utilization %.1f%%", applied.Utilization*100)
		if err := c.alerts.Append(ctx, AlertKindCapExceeded, msg, alertCtx); err != nil {
			c.logger.Warn("cap alert not persisted", zap.Error(err))
		}
		c.logger.Error("monthly budget cap exceeded",
			zap.Float64("utilization", applied.Utilization))
	}
}

// Status snapshots the ledger for the admin surface.
func (c *Controller) Status() Status {
	return c.ledger.Snapshot()
}

// UpdateSettings swaps budget settings at runtime and republishes the
// snapshot.
func (c *Controller) UpdateSettings(ctx context.Context, cfg config.BudgetConfig) {
	c.ledger.SetConfig(cfg)
	c.logger.Info("budget settings updated",
		zap.Float64("monthly_budget", cfg.MonthlyBudget),
		zap.Float64("warning_threshold", cfg.WarningThreshold),
		zap.Float64("critical_threshold", cfg.CriticalThreshold))

	if c.cache != nil {
		if err := c.cache.Publish(ctx, c.ledger.Snapshot()); err != nil {
			c.logger.Debug("budget snapshot publish failed", zap.Error(err))
		}
	}
}

// Ledger exposes the underlying accumulator to the router's cost scoring
// and the hydration path.
func (c *Controller) Ledger() *Ledger { return c.ledger }

// alert kinds, mirrored in the persistence layer.
const (
	AlertKindWarning     = "warning"
	AlertKindCritical    = "critical"
	AlertKindCapExceeded = "cap-exceeded"
)

// Reconciler is implemented by the persistence layer to rebuild the ledger
// at startup.
type Reconciler interface {
	CurrentPeriodTotals(ctx context.Context, period string) (spent float64, requests int64, perModel map[string]float64, perTier map[int]float64, freeTier map[string]*FreeTierState, err error)
}

// HydrateFromStore rebuilds the in-memory ledger from persisted totals.
func (c *Controller) HydrateFromStore(ctx context.Context, rec Reconciler) error {
	period := c.ledger.Snapshot().Period
	spent, requests, perModel, perTier, freeTier, err := rec.CurrentPeriodTotals(ctx, period)
	if err != nil {
		return err
	}
	c.ledger.Hydrate(spent, requests, perModel, perTier, freeTier)
	c.logger.Info("budget ledger hydrated",
		zap.String("period", period),
		zap.Float64("spent", spent),
		zap.Int64("requests", requests))
	return nil
}
