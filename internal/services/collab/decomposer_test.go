package collab

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
)

const authPrompt = "Implement a REST API for user auth with JWT, include tests"

func TestDecomposeAuthAPI(t *testing.T) {
	d := NewDecomposer(zap.NewNop())

	plan, err := d.Decompose(domain.DecompositionRequest{OriginalPrompt: authPrompt, MaxSubtasks: 10})
	require.NoError(t, err)
	require.Len(t, plan.Subtasks, 4)

	byID := map[string]domain.Subtask{}
	for _, s := range plan.Subtasks {
		byID[s.ID] = s
	}

	assert.Equal(t, "routing", byID["task_1"].Category)
	assert.Equal(t, "validation", byID["task_2"].Category)
	assert.Equal(t, "business_logic", byID["task_3"].Category)
	assert.Equal(t, "error_handling", byID["task_4"].Category)

	assert.Empty(t, byID["task_1"].Dependencies)
	assert.Empty(t, byID["task_2"].Dependencies)
	assert.Equal(t, []string{"task_1", "task_2"}, byID["task_3"].Dependencies)
	assert.Equal(t, []string{"task_3"}, byID["task_4"].Dependencies)

	for _, s := range plan.Subtasks {
		assert.Equal(t, domain.SubtaskPending, s.Status)
		assert.Equal(t, "javascript", s.Language)
		assert.Greater(t, s.EstimatedLOC, 0)
	}
	assert.Contains(t, byID["task_3"].Description, authPrompt)
	assert.Equal(t, 215, plan.TotalEstimatedLOC)
	assert.Contains(t, plan.ExternalDependencies, "express")
	assert.Contains(t, plan.ExternalDependencies, "jsonwebtoken")
}

func TestDecomposeSamePromptSamePlan(t *testing.T) {
	d := NewDecomposer(zap.NewNop())

	a, err := d.Decompose(domain.DecompositionRequest{OriginalPrompt: authPrompt, MaxSubtasks: 10})
	require.NoError(t, err)
	b, err := d.Decompose(domain.DecompositionRequest{OriginalPrompt: authPrompt, MaxSubtasks: 10})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestDecomposeEmptyPrompt(t *testing.T) {
	d := NewDecomposer(zap.NewNop())

	_, err := d.Decompose(domain.DecompositionRequest{OriginalPrompt: "   "})
	require.Error(t, err)
	assert.Equal(t, domain.CodeOrchestratorError, domain.CodeOf(err))
}

func TestDecomposeDetectsPython(t *testing.T) {
	d := NewDecomposer(zap.NewNop())

	plan, err := d.Decompose(domain.DecompositionRequest{
		OriginalPrompt: "Build a Python Flask API with JWT auth",
		MaxSubtasks:    10,
	})
	require.NoError(t, err)

	for _, s := range plan.Subtasks {
		assert.Equal(t, "python", s.Language)
	}
	assert.Contains(t, plan.ExternalDependencies, "pyjwt")
	assert.NotContains(t, plan.ExternalDependencies, "express")
}

func TestDecomposeTargetLanguageWins(t *testing.T) {
	d := NewDecomposer(zap.NewNop())

	plan, err := d.Decompose(domain.DecompositionRequest{
		OriginalPrompt: authPrompt,
		TargetLanguage: "typescript",
		MaxSubtasks:    10,
	})
	require.NoError(t, err)

	assert.Equal(t, "typescript", plan.Subtasks[0].Language)
	assert.Contains(t, plan.ExternalDependencies, "jsonwebtoken")
}

func TestDecomposeTrimsToBudget(t *testing.T) {
	d := NewDecomposer(zap.NewNop())
	prompt := "Build a web app with a React UI form, REST API, postgres database storage, user auth, and production error handling"

	full, err := d.Decompose(domain.DecompositionRequest{OriginalPrompt: prompt, MaxSubtasks: 10})
	require.NoError(t, err)
	require.Len(t, full.Subtasks, 6)

	trimmed, err := d.Decompose(domain.DecompositionRequest{OriginalPrompt: prompt, MaxSubtasks: 4})
	require.NoError(t, err)
	require.Len(t, trimmed.Subtasks, 4)

	categories := make([]string, 0, 4)
	for _, s := range trimmed.Subtasks {
		categories = append(categories, s.Category)
	}
	// ui and database carry the lowest retention priority, so they go first.
	assert.Equal(t, []string{"routing", "validation", "business_logic", "error_handling"}, categories)

	core := trimmed.Subtask("task_3")
	require.NotNil(t, core)
	assert.Equal(t, []string{"task_1", "task_2"}, core.Dependencies)
}

func TestValidateCleanPlan(t *testing.T) {
	d := NewDecomposer(zap.NewNop())

	plan, err := d.Decompose(domain.DecompositionRequest{OriginalPrompt: authPrompt, MaxSubtasks: 10})
	require.NoError(t, err)

	assert.Empty(t, d.Validate(plan, 10))
}

func TestValidateCatchesStructuralFaults(t *testing.T) {
	d := NewDecomposer(zap.NewNop())

	plan := &domain.DecompositionResult{Subtasks: []domain.Subtask{
		{ID: "task_1", Description: "a"},
		{ID: "task_1", Description: "duplicate"},
		{ID: "task_2", Description: "b", Dependencies: []string{"task_9"}},
		{ID: "task_3", Description: "c", Difficulty: "medium"},
	}}

	issues := d.Validate(plan, 3)
	joined := strings.Join(issues, "\n")
	assert.Contains(t, joined, "duplicate subtask id task_1")
	assert.Contains(t, joined, "unknown id task_9")
	assert.Contains(t, joined, `unknown difficulty "medium"`)
	assert.Contains(t, joined, "limit is 3")
}

func TestValidateCatchesCycle(t *testing.T) {
	d := NewDecomposer(zap.NewNop())

	plan := &domain.DecompositionResult{Subtasks: []domain.Subtask{
		{ID: "task_1", Description: "a", Dependencies: []string{"task_3"}},
		{ID: "task_2", Description: "b", Dependencies: []string{"task_1"}},
		{ID: "task_3", Description: "c", Dependencies: []string{"task_2"}},
	}}

	issues := d.Validate(plan, 10)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "dependency cycle")
}

func TestValidateEmptyPlan(t *testing.T) {
	d := NewDecomposer(zap.NewNop())

	assert.Equal(t, []string{"plan has no subtasks"}, d.Validate(nil, 10))
	assert.Equal(t, []string{"plan has no subtasks"}, d.Validate(&domain.DecompositionResult{}, 10))
}
