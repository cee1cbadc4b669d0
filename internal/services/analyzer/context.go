package analyzer

import (
	"strings"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
)

// Context-factor keys recorded on the analysis. The router reads
// FactorEscalation against the configured limit to decide task-type bumps.
const (
	FactorEscalation       = "escalation_factor"
	FactorContextEscalated = "context_escalated"
	FactorTurnCount        = "turn_count"
	FactorTopicContinuity  = "topic_continuity"
	FactorTopicShift       = "topic_shift"
	FactorPrevComplexity   = "previous_complexity"
	FactorModelQuality     = "model_performance"
)

// applyContext folds multi-turn signal into the analysis. The escalation
// factor is multiplicative, clamped to [0.5, 2.0]. When it exceeds the
// configured limit the FactorContextEscalated flag is set; the router bumps
// the task type one level in response.
func (a *Analyzer) applyContext(analysis *domain.QueryAnalysis, lowerPrompt string, conv *domain.ConversationContext) {
	factors := map[string]float64{}

	factor := 1.0

	turns := conv.TurnCount
	if turns > 8 {
		turns = 8
	}
	factor += float64(turns) * 0.05
	factors[FactorTurnCount] = float64(conv.TurnCount)

	continuity := topicContinuity(lowerPrompt, conv.PreviousResponses)
	factors[FactorTopicContinuity] = continuity
	switch {
	case continuity >= 0.3:
		factor += 0.2
		factors[FactorTopicShift] = 0
	case continuity < 0.1 && len(conv.PreviousResponses) > 0:
		// Fresh topic resets the escalation pressure a little.
		factor -= 0.1
		factors[FactorTopicShift] = 1
	default:
		factors[FactorTopicShift] = 0
	}

	prevRank := previousComplexityRank(conv)
	factors[FactorPrevComplexity] = float64(prevRank)
	if prevRank >= domain.ComplexityComplex.Rank() {
		factor += 0.3
	}

	performance := modelPerformance(conv.PreviousResponses)
	factors[FactorModelQuality] = performance
	if performance < 0.5 && len(conv.PreviousResponses) > 0 {
		// Weak earlier answers argue for a stronger model this turn.
		factor += 0.2
	}

	if factor < 0.5 {
		factor = 0.5
	}
	if factor > 2.0 {
		factor = 2.0
	}
	factors[FactorEscalation] = factor

	factors[FactorContextEscalated] = 0
	if limit := a.cfg.EscalationFactorLimit; limit > 0 && factor > limit {
		factors[FactorContextEscalated] = 1
	}

	analysis.ContextFactors = factors
}

// topicContinuity measures word overlap between the current prompt and the
// previous turns' prompts. Words under four characters are skipped.
func topicContinuity(lowerPrompt string, turns []domain.ConversationTurn) float64 {
	if len(turns) == 0 {
		return 0
	}
	current := significantWords(lowerPrompt)
	if len(current) == 0 {
		return 0
	}
	previous := map[string]bool{}
	for _, t := range turns {
		for _, w := range significantWords(strings.ToLower(t.Prompt)) {
			previous[w] = true
		}
	}
	overlap := 0
	for _, w := range current {
		if previous[w] {
			overlap++
		}
	}
	return float64(overlap) / float64(len(current))
}

func significantWords(lower string) []string {
	var out []string
	for _, w := range strings.Fields(lower) {
		w = strings.Trim(w, ".,!?:;\"'()")
		if len(w) >= 4 {
			out = append(out, w)
		}
	}
	return out
}

func previousComplexityRank(conv *domain.ConversationContext) int {
	rank := 0
	if conv.CurrentComplexityLevel != "" {
		rank = conv.CurrentComplexityLevel.Rank()
	}
	for _, t := range conv.PreviousResponses {
		if t.Complexity != "" && t.Complexity.Rank() > rank {
			rank = t.Complexity.Rank()
		}
	}
	return rank
}

// modelPerformance is the fraction of previous turns that produced a
// substantive answer. Empty or near-empty responses count against it.
func modelPerformance(turns []domain.ConversationTurn) float64 {
	if len(turns) == 0 {
		return 1
	}
	good := 0
	for _, t := range turns {
		if len(strings.TrimSpace(t.Response)) >= 20 {
			good++
		}
	}
	return float64(good) / float64(len(turns))
}
