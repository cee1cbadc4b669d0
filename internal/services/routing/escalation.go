package routing

import (
	"strings"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
)

// Escalation is the forced-floor verdict for one request. MinTier is a hard
// filter; SuppressLowTier and PreferHighTier shape scoring without removing
// candidates.
type Escalation struct {
	Score           int    `json:"score"`
	MinTier         int    `json:"min_tier"`
	ForcedModelID   string `json:"forced_model_id,omitempty"`
	SuppressLowTier bool   `json:"suppress_low_tier,omitempty"`
	PreferHighTier  bool   `json:"prefer_high_tier,omitempty"`
}

// taskTypeFloor is the tier floor each task type starts from before
// escalation raises it.
func taskTypeFloor(t domain.TaskType) int {
	switch t {
	case domain.TaskCritical:
		return 3
	case domain.TaskPremium:
		return 2
	case domain.TaskComplexAnalysis:
		return 1
	}
	return 0
}

// escalate combines task type, domain spread, analysis weight, and
// diagnostic cues into an integer score, then maps it onto tier floors per
// the configured thresholds.
func (r *Router) escalate(c Classification, lowerPrompt string) Escalation {
	score := 0
	switch c.TaskType {
	case domain.TaskCritical:
		score += 3
	case domain.TaskPremium:
		score += 2
	case domain.TaskComplexAnalysis, domain.TaskCoding:
		score++
	}

	switch {
	case len(c.Analysis.Domains) >= 3:
		score += 2
	case len(c.Analysis.Domains) == 2:
		score++
	}

	if c.Analysis.Complexity == domain.ComplexityExpert {
		score++
	}
	if c.Analysis.QualityRequirement == domain.QualityExceptional {
		score++
	}
	if c.Analysis.ReasoningDepth == domain.ReasoningDeep {
		score++
	}
	for _, cue := range diagnosticCues {
		if strings.Contains(lowerPrompt, cue) {
			score++
			break
		}
	}

	esc := Escalation{Score: score, MinTier: taskTypeFloor(c.TaskType)}
	if c.RuleMinTier > esc.MinTier {
		esc.MinTier = c.RuleMinTier
	}

	ecfg := r.cfg.Escalation
	switch {
	case ecfg.ForceFlagshipScore > 0 && score >= ecfg.ForceFlagshipScore:
		if esc.MinTier < 3 {
			esc.MinTier = 3
		}
		esc.ForcedModelID = r.cfg.FlagshipModel
	case ecfg.SuppressLowTierScore > 0 && score >= ecfg.SuppressLowTierScore:
		if esc.MinTier < 2 {
			esc.MinTier = 2
		}
		esc.SuppressLowTier = true
	case ecfg.PreferHighTierScore > 0 && score >= ecfg.PreferHighTierScore:
		esc.PreferHighTier = true
	}

	return esc
}
