package routing

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/analyzer"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/budget"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/registry"
)

// Admitter is the budget gate consulted per candidate before selection.
type Admitter interface {
	PreRequestCheck(ctx context.Context, modelID, sessionKey string, est domain.TokenEstimate) *budget.Decision
}

// Selection is the routing outcome: the chosen model, why, and what would
// have been picked next.
type Selection struct {
	Model        domain.Model     `json:"model"`
	Escalation   Escalation       `json:"escalation"`
	Decision     *budget.Decision `json:"decision,omitempty"`
	Alternatives []string         `json:"alternatives,omitempty"`
	DeniedModels []string         `json:"denied_models,omitempty"`
	FellBack     bool             `json:"fell_back,omitempty"`
}

// Router picks exactly one model per request. It never panics and never
// returns a nil selection without an error.
type Router struct {
	cfg      config.RoutingConfig
	logger   *zap.Logger
	analyzer *analyzer.Analyzer
	registry *registry.Registry
	budget   Admitter
}

func New(cfg config.RoutingConfig, an *analyzer.Analyzer, reg *registry.Registry, adm Admitter, logger *zap.Logger) *Router {
	return &Router{
		cfg:      cfg,
		logger:   logger.Named("router"),
		analyzer: an,
		registry: reg,
		budget:   adm,
	}
}

// Select resolves a model for the classified request. Admission runs per
// candidate; when every candidate at or above the tier floor is denied on
// budget, selection falls back to the cheapest admissible lower tier before
// giving up with BUDGET_EXCEEDED or MODEL_UNAVAILABLE.
func (r *Router) Select(ctx context.Context, req *domain.Request, c Classification) (*Selection, error) {
	lower := strings.ToLower(req.Prompt)
	esc := r.escalate(c, lower)

	pool := r.pool(esc.MinTier, req.PreferredTier)
	if len(pool) == 0 {
		if req.PreferredTier != nil {
			return nil, domain.Errorf(domain.CodeModelUnavailable, "no healthy model at preferred tier %d", *req.PreferredTier)
		}
		return nil, domain.Errorf(domain.CodeModelUnavailable, "no healthy model at tier >= %d", esc.MinTier)
	}

	ranked := r.scoreCandidates(pool, c, esc, lower)
	if esc.ForcedModelID != "" && req.PreferredTier == nil {
		ranked = promoteForced(ranked, esc.ForcedModelID)
	}

	sel := &Selection{Escalation: esc}
	est := c.Analysis.EstimatedTokens
	var budgetDenied bool
	for i, cand := range ranked {
		decision := r.budget.PreRequestCheck(ctx, cand.Model.ID, req.SessionID, est)
		if decision.Approved {
			sel.Model = cand.Model
			sel.Decision = decision
			sel.Alternatives = alternativeIDs(ranked, i+1, 3)
			r.logSelection(sel, c)
			return sel, nil
		}
		budgetDenied = true
		sel.DeniedModels = append(sel.DeniedModels, cand.Model.ID)
		r.logger.Info("admission denied",
			zap.String("model", cand.Model.ID),
			zap.String("code", string(decision.Code)),
			zap.String("reason", decision.Reason))
	}

	// Every candidate at or above the floor was denied. Try cheaper tiers,
	// cheapest first, unless the caller pinned a tier.
	if r.cfg.FallbackEnabled && req.PreferredTier == nil && esc.MinTier > domain.MinTier {
		fallbackRanked := r.scoreCandidates(r.poolBelow(esc.MinTier), c, Escalation{}, lower)
		sort.SliceStable(fallbackRanked, func(i, j int) bool {
			return cheaper(fallbackRanked[i], fallbackRanked[j])
		})
		for _, cand := range fallbackRanked {
			decision := r.budget.PreRequestCheck(ctx, cand.Model.ID, req.SessionID, est)
			if decision.Approved {
				sel.Model = cand.Model
				sel.Decision = decision
				sel.FellBack = true
				r.logSelection(sel, c)
				return sel, nil
			}
			sel.DeniedModels = append(sel.DeniedModels, cand.Model.ID)
		}
	}

	if budgetDenied {
		return nil, domain.Errorf(domain.CodeBudgetExceeded, "no model admissible within budget (denied: %s)", strings.Join(sel.DeniedModels, ", "))
	}
	return nil, domain.NewError(domain.CodeModelUnavailable, "no admissible model")
}

// Fallback returns the highest-tier healthy model strictly below the
// current one. Used on provider-level errors when fallback is enabled.
func (r *Router) Fallback(current domain.Model) (domain.Model, error) {
	byTier := r.registry.HealthyByTier()
	for tier := current.Tier - 1; tier >= domain.MinTier; tier-- {
		models := byTier[tier]
		if len(models) == 0 {
			continue
		}
		best := models[0]
		for _, m := range models[1:] {
			if m.ID < best.ID {
				best = m
			}
		}
		return best, nil
	}
	return domain.Model{}, domain.Errorf(domain.CodeModelUnavailable, "no healthy model below tier %d", current.Tier)
}

func (r *Router) pool(minTier int, preferred *int) []domain.Model {
	var out []domain.Model
	for _, m := range r.registry.ListModels() {
		if preferred != nil {
			if m.Tier == *preferred {
				out = append(out, m)
			}
			continue
		}
		if m.Tier >= minTier {
			out = append(out, m)
		}
	}
	return out
}

func (r *Router) poolBelow(tier int) []domain.Model {
	var out []domain.Model
	for _, m := range r.registry.ListModels() {
		if m.Tier < tier {
			out = append(out, m)
		}
	}
	return out
}

// cheaper orders fallback candidates by tier ascending, then score
// descending within a tier.
func cheaper(a, b Candidate) bool {
	if a.Model.Tier != b.Model.Tier {
		return a.Model.Tier < b.Model.Tier
	}
	return a.Score > b.Score
}

func promoteForced(ranked []Candidate, forcedID string) []Candidate {
	for i, cand := range ranked {
		if cand.Model.ID == forcedID {
			if i == 0 {
				return ranked
			}
			out := make([]Candidate, 0, len(ranked))
			out = append(out, ranked[i])
			out = append(out, ranked[:i]...)
			out = append(out, ranked[i+1:]...)
			return out
		}
	}
	return ranked
}

func alternativeIDs(ranked []Candidate, from, n int) []string {
	var out []string
	for i := from; i < len(ranked) && len(out) < n; i++ {
		out = append(out, ranked[i].Model.ID)
	}
	return out
}

func (r *Router) logSelection(sel *Selection, c Classification) {
	r.logger.Info("model selected",
		zap.String("model", sel.Model.ID),
		zap.Int("tier", sel.Model.Tier),
		zap.String("task_type", string(c.TaskType)),
		zap.Int("escalation_score", sel.Escalation.Score),
		zap.Bool("fell_back", sel.FellBack),
		zap.Strings("alternatives", sel.Alternatives))
}
