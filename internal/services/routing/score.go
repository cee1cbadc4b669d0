package routing

import (
	"sort"
	"strings"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
)

// Candidate is one scored routing option.
type Candidate struct {
	Model domain.Model `json:"model"`
	Score float64      `json:"score"`
}

const (
	weightTierFit    = 0.35
	weightCapability = 0.30
	weightPriority   = 0.25
	weightDomain     = 0.10

	preferHighTierBoost = 1.1
)

// idealTier maps complexity onto the tier ladder. Trivial and simple work
// both belong on the cheapest tier.
func idealTier(c domain.Complexity) int {
	switch c {
	case domain.ComplexityTrivial, domain.ComplexitySimple:
		return 0
	case domain.ComplexityModerate:
		return 1
	case domain.ComplexityComplex:
		return 2
	default:
		return 4
	}
}

// tierFit decays by a quarter per tier of distance from the ideal.
func tierFit(modelTier, ideal int) float64 {
	dist := modelTier - ideal
	if dist < 0 {
		dist = -dist
	}
	fit := 1 - 0.25*float64(dist)
	if fit < 0 {
		fit = 0
	}
	return fit
}

func capabilityMatch(m domain.Model, required []string) float64 {
	if len(required) == 0 {
		return 1
	}
	matched := 0
	for _, capability := range required {
		if m.HasCapability(capability) {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}

// priorityFit scores the model's implicit accuracy/speed/cost triple against
// the analysis' weights. Higher tiers read as accurate, low latency hints as
// fast, low tiers as cheap.
func priorityFit(m domain.Model, balance domain.PriorityBalance) float64 {
	accuracy := 0.2 + 0.2*float64(m.Tier)

	var speed float64
	switch {
	case m.LatencyHintMS <= 500:
		speed = 1.0
	case m.LatencyHintMS <= 1000:
		speed = 0.8
	case m.LatencyHintMS <= 2000:
		speed = 0.6
	case m.LatencyHintMS <= 4000:
		speed = 0.4
	default:
		speed = 0.2
	}

	cost := 1 - 0.2*float64(m.Tier)

	return balance.Accuracy*accuracy + balance.Speed*speed + balance.Cost*cost
}

func domainBonus(m domain.Model, lowerPrompt string, domains []string) float64 {
	words := strings.Fields(lowerPrompt)
	if m.HasAnyKeyword(words) {
		return 1
	}
	for _, d := range domains {
		if m.HasCapability(d) {
			return 0.5
		}
	}
	return 0
}

// scoreCandidates ranks the pool descending. Scores are deterministic; ties
// break by lower tier first, then id, so selection is stable.
func (r *Router) scoreCandidates(pool []domain.Model, c Classification, esc Escalation, lowerPrompt string) []Candidate {
	ideal := idealTier(c.Analysis.Complexity)
	if esc.MinTier > ideal {
		ideal = esc.MinTier
	}

	out := make([]Candidate, 0, len(pool))
	for _, m := range pool {
		score := weightTierFit*tierFit(m.Tier, ideal) +
			weightCapability*capabilityMatch(m, c.Analysis.RequiredCapabilities) +
			weightPriority*priorityFit(m, c.Analysis.PriorityBalance) +
			weightDomain*domainBonus(m, lowerPrompt, c.Analysis.Domains)

		if esc.SuppressLowTier && m.Tier <= 1 {
			penalty := r.cfg.Escalation.LowTierPenalty
			if penalty <= 0 {
				penalty = 0.2
			}
			score *= penalty
		}
		if esc.PreferHighTier && m.Tier >= 2 {
			score *= preferHighTierBoost
		}

		out = append(out, Candidate{Model: m, Score: score})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Model.Tier != out[j].Model.Tier {
			return out[i].Model.Tier < out[j].Model.Tier
		}
		return out[i].Model.ID < out[j].Model.ID
	})
	return out
}
