package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/analyzer"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/budget"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/providers"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/registry"
)

// stubAdmitter approves everything except the models listed in deny.
type stubAdmitter struct {
	deny  map[string]domain.Code
	calls []string
}

func (s *stubAdmitter) PreRequestCheck(_ context.Context, modelID, _ string, _ domain.TokenEstimate) *budget.Decision {
	s.calls = append(s.calls, modelID)
	if code, ok := s.deny[modelID]; ok {
		return &budget.Decision{Approved: false, Code: code, Reason: "denied by test"}
	}
	return &budget.Decision{Approved: true, EstimatedCost: 0.01}
}

func testRoutingConfig() config.RoutingConfig {
	return config.RoutingConfig{
		DefaultTier:             1,
		FallbackEnabled:         true,
		FlagshipModel:           "gpt-5",
		CriticalSignalThreshold: 2,
		Escalation: config.EscalationConfig{
			ForceFlagshipScore:   5,
			SuppressLowTierScore: 3,
			PreferHighTierScore:  2,
			LowTierPenalty:       0.2,
		},
	}
}

func fullRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	cfg := &config.Config{}
	cfg.Providers.Alibaba.APIKey = "k"
	cfg.Providers.Google.APIKey = "k"
	cfg.Providers.Anthropic.APIKey = "k"
	cfg.Providers.OpenAI.APIKey = "k"
	cfg.Providers.OpenRouter.APIKey = "k"
	reg, err := registry.NewFromConfig(cfg, zap.NewNop(), providers.WithLatencyScale(0))
	require.NoError(t, err)
	return reg
}

func testRouter(t *testing.T, adm Admitter) *Router {
	t.Helper()
	an := analyzer.New(config.AnalyzerConfig{
		MaxPromptChars:        50000,
		OutputTokenCeiling:    8000,
		EscalationFactorLimit: 1.5,
	}, zap.NewNop())
	return New(testRoutingConfig(), an, fullRegistry(t), adm, zap.NewNop())
}

func TestClassifyHonorsUserTaskType(t *testing.T) {
	r := testRouter(t, &stubAdmitter{})

	c := r.Classify(&domain.Request{
		Prompt:   "whatever text",
		TaskType: domain.TaskCoding,
	})

	assert.Equal(t, domain.TaskCoding, c.TaskType)
	assert.True(t, c.UserSpecified)
	assert.NotEmpty(t, c.Analysis.Complexity)
}

func TestClassifyCriticalSignals(t *testing.T) {
	r := testRouter(t, &stubAdmitter{})

	c := r.Classify(&domain.Request{
		Prompt: "Design the strategic architecture for an ultimate real-time consensus system across three datacenters",
	})

	assert.GreaterOrEqual(t, c.CriticalSignals, 2)
	assert.Equal(t, domain.TaskCritical, c.TaskType)
}

func TestClassifyDerivesCoding(t *testing.T) {
	r := testRouter(t, &stubAdmitter{})

	c := r.Classify(&domain.Request{Prompt: "Create a Python function to compute fibonacci"})

	assert.Equal(t, domain.TaskCoding, c.TaskType)
}

func TestClassifyTaskRule(t *testing.T) {
	cfg := testRoutingConfig()
	cfg.TaskRules = []config.TaskRule{
		{TaskType: "complex_analysis", Keywords: []string{"kubernetes"}, MinTier: 2},
	}
	an := analyzer.New(config.AnalyzerConfig{OutputTokenCeiling: 8000, EscalationFactorLimit: 1.5}, zap.NewNop())
	r := New(cfg, an, fullRegistry(t), &stubAdmitter{}, zap.NewNop())

	c := r.Classify(&domain.Request{Prompt: "check the kubernetes pod"})

	assert.Equal(t, domain.TaskComplexAnalysis, c.TaskType)
	assert.Equal(t, 2, c.RuleMinTier)
	assert.NotEmpty(t, c.RuleApplied)
}

func TestSelectSimpleCodingPicksTierZero(t *testing.T) {
	r := testRouter(t, &stubAdmitter{})

	req := &domain.Request{Prompt: "Create a Python function to compute fibonacci", TaskType: domain.TaskCoding}
	c := r.Classify(req)
	sel, err := r.Select(context.Background(), req, c)

	require.NoError(t, err)
	assert.Equal(t, 0, sel.Model.Tier)
	assert.True(t, sel.Model.HasCapability("coding"))
	assert.False(t, sel.FellBack)
}

func TestSelectForcesFlagship(t *testing.T) {
	r := testRouter(t, &stubAdmitter{})

	req := &domain.Request{Prompt: "Design the strategic architecture for an ultimate real-time consensus system across three datacenters"}
	c := r.Classify(req)
	sel, err := r.Select(context.Background(), req, c)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, sel.Escalation.Score, 5)
	assert.Equal(t, "gpt-5", sel.Model.ID)
	assert.Equal(t, 3, sel.Model.Tier)
	assert.Equal(t, 3, sel.Escalation.MinTier)
}

func TestSelectBudgetFallback(t *testing.T) {
	adm := &stubAdmitter{deny: map[string]domain.Code{}}
	r := testRouter(t, adm)

	req := &domain.Request{Prompt: "Design the strategic architecture for an ultimate real-time consensus system across three datacenters"}
	c := r.Classify(req)

	// Deny everything at the forced floor so selection must fall back.
	for _, m := range r.registry.AllModels() {
		if m.Tier >= 3 {
			adm.deny[m.ID] = domain.CodeBudgetExceeded
		}
	}

	sel, err := r.Select(context.Background(), req, c)
	require.NoError(t, err)
	assert.True(t, sel.FellBack)
	assert.Less(t, sel.Model.Tier, 3)
	assert.NotEmpty(t, sel.DeniedModels)

	// Cheapest admissible tier wins on fallback.
	assert.Equal(t, 0, sel.Model.Tier)
}

func TestSelectAllDeniedReturnsBudgetExceeded(t *testing.T) {
	adm := &stubAdmitter{deny: map[string]domain.Code{}}
	r := testRouter(t, adm)

	for _, m := range r.registry.AllModels() {
		adm.deny[m.ID] = domain.CodeBudgetExceeded
	}

	req := &domain.Request{Prompt: "summarize this change"}
	c := r.Classify(req)
	_, err := r.Select(context.Background(), req, c)

	require.Error(t, err)
	assert.Equal(t, domain.CodeBudgetExceeded, domain.CodeOf(err))
}

func TestSelectPreferredTier(t *testing.T) {
	r := testRouter(t, &stubAdmitter{})

	tier := 2
	req := &domain.Request{Prompt: "explain this tradeoff", PreferredTier: &tier}
	c := r.Classify(req)
	sel, err := r.Select(context.Background(), req, c)

	require.NoError(t, err)
	assert.Equal(t, 2, sel.Model.Tier)
}

func TestSelectPreferredTierUnavailable(t *testing.T) {
	// Only alibaba models are healthy; tier 4 has none.
	cfg := &config.Config{}
	cfg.Providers.Alibaba.APIKey = "k"
	reg, err := registry.NewFromConfig(cfg, zap.NewNop(), providers.WithLatencyScale(0))
	require.NoError(t, err)

	an := analyzer.New(config.AnalyzerConfig{OutputTokenCeiling: 8000}, zap.NewNop())
	r := New(testRoutingConfig(), an, reg, &stubAdmitter{}, zap.NewNop())

	tier := 4
	req := &domain.Request{Prompt: "anything", PreferredTier: &tier}
	c := r.Classify(req)
	_, err = r.Select(context.Background(), req, c)

	require.Error(t, err)
	assert.Equal(t, domain.CodeModelUnavailable, domain.CodeOf(err))
}

func TestSelectDeterministic(t *testing.T) {
	r := testRouter(t, &stubAdmitter{})

	req := &domain.Request{Prompt: "Analyze the database replication lag and recommend an index strategy"}
	c := r.Classify(req)

	first, err := r.Select(context.Background(), req, c)
	require.NoError(t, err)
	second, err := r.Select(context.Background(), req, c)
	require.NoError(t, err)

	assert.Equal(t, first.Model.ID, second.Model.ID)
	assert.Equal(t, first.Alternatives, second.Alternatives)
}

func TestFallbackMonotonic(t *testing.T) {
	r := testRouter(t, &stubAdmitter{})

	current, _, err := r.registry.Get("gpt-5")
	require.NoError(t, err)

	lower, err := r.Fallback(current)
	require.NoError(t, err)
	assert.Less(t, lower.Tier, current.Tier)

	tierZero, _, err := r.registry.Get("gemini-2.0-flash-lite")
	require.NoError(t, err)
	_, err = r.Fallback(tierZero)
	require.Error(t, err)
	assert.Equal(t, domain.CodeModelUnavailable, domain.CodeOf(err))
}

func TestSuppressedLowTierPenalty(t *testing.T) {
	r := testRouter(t, &stubAdmitter{})

	c := Classification{
		TaskType: domain.TaskComplexAnalysis,
		Analysis: domain.QueryAnalysis{
			Complexity:      domain.ComplexityModerate,
			PriorityBalance: domain.PriorityBalance{Accuracy: 1.0 / 3, Speed: 1.0 / 3, Cost: 1.0 / 3},
		},
	}
	pool := r.registry.ListModels()

	plain := r.scoreCandidates(pool, c, Escalation{}, "")
	suppressed := r.scoreCandidates(pool, c, Escalation{SuppressLowTier: true}, "")

	plainScore := map[string]float64{}
	for _, cand := range plain {
		plainScore[cand.Model.ID] = cand.Score
	}
	for _, cand := range suppressed {
		if cand.Model.Tier <= 1 {
			assert.InDelta(t, plainScore[cand.Model.ID]*0.2, cand.Score, 1e-9,
				"low tier model %s should carry the suppression penalty", cand.Model.ID)
		}
	}
}
