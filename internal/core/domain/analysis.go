package domain

// Complexity buckets a prompt by how demanding it is.
type Complexity string

const (
	ComplexityTrivial  Complexity = "trivial"
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityExpert   Complexity = "expert"
)

// Rank orders buckets trivial=0 .. expert=4.
func (c Complexity) Rank() int {
	switch c {
	case ComplexityTrivial:
		return 0
	case ComplexitySimple:
		return 1
	case ComplexityModerate:
		return 2
	case ComplexityComplex:
		return 3
	case ComplexityExpert:
		return 4
	}
	return 2
}

func ComplexityFromRank(rank int) Complexity {
	switch {
	case rank <= 0:
		return ComplexityTrivial
	case rank == 1:
		return ComplexitySimple
	case rank == 2:
		return ComplexityModerate
	case rank == 3:
		return ComplexityComplex
	default:
		return ComplexityExpert
	}
}

type ReasoningDepth string

const (
	ReasoningShallow  ReasoningDepth = "shallow"
	ReasoningModerate ReasoningDepth = "moderate"
	ReasoningDeep     ReasoningDepth = "deep"
)

type CreativityLevel string

const (
	CreativityFactual    CreativityLevel = "factual"
	CreativityAnalytical CreativityLevel = "analytical"
	CreativityCreative   CreativityLevel = "creative"
	CreativityInnovative CreativityLevel = "innovative"
)

type IntentCategory string

const (
	IntentQuestion IntentCategory = "question"
	IntentTask     IntentCategory = "task"
	IntentCreation IntentCategory = "creation"
	IntentAnalysis IntentCategory = "analysis"
	IntentDecision IntentCategory = "decision"
)

type QualityRequirement string

const (
	QualityBasic       QualityRequirement = "basic"
	QualityGood        QualityRequirement = "good"
	QualityHigh        QualityRequirement = "high"
	QualityExceptional QualityRequirement = "exceptional"
)

// PriorityBalance weighs the three routing objectives. After normalization
// the three values sum to 1.
type PriorityBalance struct {
	Accuracy float64 `json:"accuracy"`
	Speed    float64 `json:"speed"`
	Cost     float64 `json:"cost"`
}

func (p PriorityBalance) Normalized() PriorityBalance {
	sum := p.Accuracy + p.Speed + p.Cost
	if sum <= 0 {
		return PriorityBalance{Accuracy: 1.0 / 3, Speed: 1.0 / 3, Cost: 1.0 / 3}
	}
	return PriorityBalance{
		Accuracy: p.Accuracy / sum,
		Speed:    p.Speed / sum,
		Cost:     p.Cost / sum,
	}
}

type TokenEstimate struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// QueryAnalysis is the analyzer's multi-dimensional read of a prompt. All
// enum fields are always populated and PriorityBalance is normalized.
type QueryAnalysis struct {
	Complexity                 Complexity         `json:"complexity"`
	ReasoningDepth             ReasoningDepth     `json:"reasoning_depth"`
	CreativityLevel            CreativityLevel    `json:"creativity_level"`
	PriorityBalance            PriorityBalance    `json:"priority_balance"`
	RequiredCapabilities       []string           `json:"required_capabilities"`
	Domains                    []string           `json:"domains"`
	IntentCategory             IntentCategory     `json:"intent_category"`
	QualityRequirement         QualityRequirement `json:"quality_requirement"`
	EstimatedTokens            TokenEstimate      `json:"estimated_tokens"`
	EstimatedProcessingSeconds float64            `json:"estimated_processing_seconds"`
	Confidence                 float64            `json:"confidence"`
	ContextFactors             map[string]float64 `json:"context_factors,omitempty"`
}

func (a *QueryAnalysis) HasCapability(capability string) bool {
	for _, c := range a.RequiredCapabilities {
		if c == capability {
			return true
		}
	}
	return false
}
