package collab

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/analyzer"
)

var hardCues = []string{
	"algorithm", "optimiz", "security", "distributed", "machine learning",
	"concurren", "encrypt", "auth", "jwt", "crypto", "transaction", "real-time",
}

var easyCues = []string{
	"crud", "form", "display", "render", "static", "template", "lookup",
	"validat", "endpoint",
}

// languageWeights shift the heuristic score: markup and config formats read
// lighter, systems languages heavier.
var languageWeights = map[string]float64{
	"html": -15, "css": -15, "json": -15, "markdown": -15, "yaml": -15,
	"typescript": 10, "java": 10, "csharp": 10, "c#": 10,
	"rust": 15, "go": 15, "c++": 15, "cpp": 15,
}

// defaultSuccessRates seed the per-category history before any real
// outcomes arrive. Lower success reads as harder work.
var defaultSuccessRates = map[string]float64{
	"routing":        0.92,
	"validation":     0.90,
	"error_handling": 0.88,
	"ui":             0.85,
	"database":       0.80,
	"general":        0.75,
	"business_logic": 0.70,
	"algorithm":      0.60,
}

const (
	weightHeuristic  = 0.4
	weightComplexity = 0.4
	weightContext    = 0.2

	// Blend between the rule scores and the delegated analyzer.
	ruleShare     = 0.7
	analyzerShare = 0.3

	thresholdStep  = 0.05
	thresholdFloor = 0.2
	thresholdCeil  = 0.9
)

// Classifier labels subtasks easy or hard. The threshold and the historical
// success rates are mutable at runtime, so all access is mutex-guarded.
type Classifier struct {
	logger   *zap.Logger
	analyzer *analyzer.Analyzer

	mu           sync.RWMutex
	threshold    float64
	successRates map[string]float64
}

// NewClassifier builds a classifier. an may be nil; scores then come from
// the rule heuristics alone.
func NewClassifier(threshold float64, an *analyzer.Analyzer, logger *zap.Logger) *Classifier {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.5
	}
	rates := make(map[string]float64, len(defaultSuccessRates))
	for k, v := range defaultSuccessRates {
		rates[k] = v
	}
	return &Classifier{
		logger:       logger.Named("difficulty"),
		analyzer:     an,
		threshold:    threshold,
		successRates: rates,
	}
}

// ClassifyBatch scores every subtask in place and returns warnings about a
// suspicious label distribution.
func (c *Classifier) ClassifyBatch(subtasks []domain.Subtask) ([]domain.Subtask, []string) {
	c.mu.RLock()
	threshold := c.threshold
	c.mu.RUnlock()

	for i := range subtasks {
		score := c.Score(&subtasks[i])
		if score < threshold*100 {
			subtasks[i].Difficulty = domain.DifficultyEasy
		} else {
			subtasks[i].Difficulty = domain.DifficultyHard
		}
	}
	return subtasks, c.distributionWarnings(subtasks)
}

// Score computes the 0..100 difficulty score for one subtask.
func (c *Classifier) Score(s *domain.Subtask) float64 {
	h := heuristicScore(s)
	k := complexityScore(s)
	ctx := c.contextScore(s)
	score := weightHeuristic*h + weightComplexity*k + weightContext*ctx

	if c.analyzer != nil {
		score = ruleShare*score + analyzerShare*c.analyzerScore(s)
	}
	return clampScore(score)
}

// RecordOutcome folds a subtask outcome into the category history with an
// exponential moving average.
func (c *Classifier) RecordOutcome(category string, success bool) {
	if category == "" {
		category = "general"
	}
	v := 0.0
	if success {
		v = 1.0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.successRates[category]
	if !ok {
		prev = defaultSuccessRates["general"]
	}
	c.successRates[category] = 0.8*prev + 0.2*v
}

// AdjustThreshold retunes the easy/hard boundary from recent fleet
// performance. High low-tier success means more work can stay cheap; low
// success or saturated high tiers push the boundary the other way.
func (c *Classifier) AdjustThreshold(lowTierSuccessRate, highTierUtilization float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case lowTierSuccessRate > 0.9:
		c.threshold += thresholdStep
	case lowTierSuccessRate < 0.7:
		c.threshold -= thresholdStep
	}
	if highTierUtilization > 0.7 {
		c.threshold += thresholdStep
	}

	if c.threshold < thresholdFloor {
		c.threshold = thresholdFloor
	}
	if c.threshold > thresholdCeil {
		c.threshold = thresholdCeil
	}
	c.logger.Debug("difficulty threshold adjusted",
		zap.Float64("threshold", c.threshold),
		zap.Float64("low_tier_success", lowTierSuccessRate),
		zap.Float64("high_tier_utilization", highTierUtilization))
	return c.threshold
}

func (c *Classifier) Threshold() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.threshold
}

// heuristicScore is banded by estimated size, shifted by language weight,
// plus a dependency penalty.
func heuristicScore(s *domain.Subtask) float64 {
	var score float64
	switch {
	case s.EstimatedLOC <= 30:
		score = 20
	case s.EstimatedLOC <= 100:
		score = 45
	case s.EstimatedLOC <= 200:
		score = 70
	default:
		score = 90
	}

	score += languageWeights[strings.ToLower(s.Language)]

	penalty := 5 * float64(len(s.Dependencies))
	if penalty > 15 {
		penalty = 15
	}
	score += penalty

	return clampScore(score)
}

// complexityScore reads the description. Hard cues add weight, easy cues
// remove it, and the work category shifts the base.
func complexityScore(s *domain.Subtask) float64 {
	lower := strings.ToLower(s.Description)
	score := 50.0

	bump := 0.0
	for _, cue := range hardCues {
		if strings.Contains(lower, cue) {
			bump += 12
		}
	}
	if bump > 36 {
		bump = 36
	}
	score += bump

	for _, cue := range easyCues {
		if strings.Contains(lower, cue) {
			score -= 8
		}
	}

	if strings.Contains(lower, "test") || strings.Contains(lower, "config") {
		score -= 10
	}
	if strings.Contains(lower, "business logic") || strings.Contains(lower, "api design") || strings.Contains(lower, "across the api") {
		score += 10
	}

	return clampScore(score)
}

// contextScore converts the category's historical success rate into
// difficulty: the more often a category failed, the harder it scores.
func (c *Classifier) contextScore(s *domain.Subtask) float64 {
	category := s.Category
	if category == "" {
		category = "general"
	}

	c.mu.RLock()
	rate, ok := c.successRates[category]
	c.mu.RUnlock()
	if !ok {
		rate = defaultSuccessRates["general"]
	}
	return clampScore((1 - rate) * 100)
}

// analyzerScore delegates to the query analyzer and maps its complexity
// label onto the 0..100 scale.
func (c *Classifier) analyzerScore(s *domain.Subtask) float64 {
	a := c.analyzer.Analyze(s.Description, nil)
	switch a.Complexity {
	case domain.ComplexityTrivial:
		return 10
	case domain.ComplexitySimple:
		return 30
	case domain.ComplexityModerate:
		return 50
	case domain.ComplexityComplex:
		return 75
	default:
		return 95
	}
}

func (c *Classifier) distributionWarnings(subtasks []domain.Subtask) []string {
	if len(subtasks) == 0 {
		return nil
	}
	easy := 0
	var issues []string
	for i := range subtasks {
		s := &subtasks[i]
		if s.Difficulty == domain.DifficultyEasy {
			easy++
			if s.EstimatedLOC > 200 {
				issues = append(issues, fmt.Sprintf("subtask %s labeled easy despite %d estimated lines", s.ID, s.EstimatedLOC))
			}
		} else if s.EstimatedLOC <= 30 && !hasHardCue(s.Description) {
			issues = append(issues, fmt.Sprintf("subtask %s labeled hard despite %d estimated lines", s.ID, s.EstimatedLOC))
		}
	}

	share := float64(easy) / float64(len(subtasks))
	if len(subtasks) >= 3 {
		if share > 0.9 {
			issues = append(issues, "over 90% of subtasks labeled easy; threshold may be too high")
		} else if share < 0.1 {
			issues = append(issues, "over 90% of subtasks labeled hard; threshold may be too low")
		}
	}
	return issues
}

func hasHardCue(description string) bool {
	lower := strings.ToLower(description)
	for _, cue := range hardCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
