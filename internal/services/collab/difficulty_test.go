package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/analyzer"
)

func testAnalyzer() *analyzer.Analyzer {
	return analyzer.New(config.AnalyzerConfig{
		MaxPromptChars:        50000,
		OutputTokenCeiling:    8000,
		EscalationFactorLimit: 1.5,
	}, zap.NewNop())
}

func authPlanSubtasks(t *testing.T) []domain.Subtask {
	t.Helper()
	d := NewDecomposer(zap.NewNop())
	plan, err := d.Decompose(domain.DecompositionRequest{OriginalPrompt: authPrompt, MaxSubtasks: 10})
	require.NoError(t, err)
	require.Len(t, plan.Subtasks, 4)
	return plan.Subtasks
}

func TestClassifyBatchAuthPlan(t *testing.T) {
	c := NewClassifier(0.5, testAnalyzer(), zap.NewNop())

	subtasks, warnings := c.ClassifyBatch(authPlanSubtasks(t))

	assert.Empty(t, warnings)
	assert.Equal(t, domain.DifficultyEasy, subtasks[0].Difficulty)
	assert.Equal(t, domain.DifficultyEasy, subtasks[1].Difficulty)
	assert.Equal(t, domain.DifficultyHard, subtasks[2].Difficulty)
	assert.Equal(t, domain.DifficultyEasy, subtasks[3].Difficulty)

	assert.InDelta(t, 28.48, c.Score(&subtasks[0]), 0.01)
	assert.InDelta(t, 21.76, c.Score(&subtasks[1]), 0.01)
	assert.InDelta(t, 62.32, c.Score(&subtasks[2]), 0.01)
	assert.InDelta(t, 34.48, c.Score(&subtasks[3]), 0.01)
}

func TestScoreWithoutAnalyzer(t *testing.T) {
	c := NewClassifier(0.5, nil, zap.NewNop())
	subtasks := authPlanSubtasks(t)

	// Rule scores only; the core business subtask still lands hard.
	assert.InDelta(t, 67.6, c.Score(&subtasks[2]), 0.01)

	classified, _ := c.ClassifyBatch(subtasks)
	assert.Equal(t, domain.DifficultyHard, classified[2].Difficulty)
	assert.Equal(t, domain.DifficultyEasy, classified[0].Difficulty)
}

func TestHeuristicScoreBands(t *testing.T) {
	cases := []struct {
		name string
		sub  domain.Subtask
		want float64
	}{
		{"tiny", domain.Subtask{EstimatedLOC: 10}, 20},
		{"medium", domain.Subtask{EstimatedLOC: 80}, 45},
		{"large", domain.Subtask{EstimatedLOC: 150}, 70},
		{"huge", domain.Subtask{EstimatedLOC: 250}, 90},
		{"systems language", domain.Subtask{EstimatedLOC: 10, Language: "go"}, 35},
		{"markup", domain.Subtask{EstimatedLOC: 10, Language: "html"}, 5},
		{"dependency penalty capped", domain.Subtask{
			EstimatedLOC: 10, Dependencies: []string{"a", "b", "c", "d"},
		}, 35},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, heuristicScore(&tc.sub), 0.001)
		})
	}
}

func TestComplexityScoreCues(t *testing.T) {
	hard := domain.Subtask{Description: "Optimize the distributed encryption algorithm with concurrent transactions"}
	assert.InDelta(t, 86, complexityScore(&hard), 0.001) // six hard cues, capped at +36

	easy := domain.Subtask{Description: "Render a static template form display"}
	assert.InDelta(t, 10, complexityScore(&easy), 0.001)

	test := domain.Subtask{Description: "Write unit checks for the config loader"}
	assert.InDelta(t, 40, complexityScore(&test), 0.001)
}

func TestContextScoreTracksOutcomes(t *testing.T) {
	c := NewClassifier(0.5, nil, zap.NewNop())
	sub := domain.Subtask{Category: "routing", EstimatedLOC: 20, Description: "plain work"}

	assert.InDelta(t, 29.6, c.Score(&sub), 0.01)

	c.RecordOutcome("routing", false)
	assert.InDelta(t, 33.28, c.Score(&sub), 0.01)

	unknown := domain.Subtask{Category: "mystery", EstimatedLOC: 20, Description: "plain work"}
	assert.InDelta(t, 33.0, c.Score(&unknown), 0.01)
}

func TestAdjustThreshold(t *testing.T) {
	t.Run("high low-tier success raises", func(t *testing.T) {
		c := NewClassifier(0.5, nil, zap.NewNop())
		assert.InDelta(t, 0.55, c.AdjustThreshold(0.95, 0.2), 0.001)
	})
	t.Run("low low-tier success lowers", func(t *testing.T) {
		c := NewClassifier(0.5, nil, zap.NewNop())
		assert.InDelta(t, 0.45, c.AdjustThreshold(0.6, 0.2), 0.001)
	})
	t.Run("saturated high tier raises", func(t *testing.T) {
		c := NewClassifier(0.5, nil, zap.NewNop())
		assert.InDelta(t, 0.55, c.AdjustThreshold(0.8, 0.8), 0.001)
	})
	t.Run("clamped to bounds", func(t *testing.T) {
		c := NewClassifier(0.5, nil, zap.NewNop())
		for i := 0; i < 20; i++ {
			c.AdjustThreshold(0.95, 0.9)
		}
		assert.InDelta(t, 0.9, c.Threshold(), 0.001)

		for i := 0; i < 20; i++ {
			c.AdjustThreshold(0.1, 0.0)
		}
		assert.InDelta(t, 0.2, c.Threshold(), 0.001)
	})
}

func TestDistributionWarnings(t *testing.T) {
	t.Run("all easy", func(t *testing.T) {
		c := NewClassifier(0.9, testAnalyzer(), zap.NewNop())
		_, warnings := c.ClassifyBatch(authPlanSubtasks(t))
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "threshold may be too high")
	})
	t.Run("hard label on trivial work", func(t *testing.T) {
		c := NewClassifier(0.2, nil, zap.NewNop())
		subs := []domain.Subtask{{ID: "task_1", EstimatedLOC: 10, Description: "simple lookup"}}
		classified, warnings := c.ClassifyBatch(subs)
		require.Equal(t, domain.DifficultyHard, classified[0].Difficulty)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "labeled hard despite 10 estimated lines")
	})
}
