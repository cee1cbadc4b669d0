package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(zap.NewNop())
	require.NoError(t, err)
	return m
}

func TestManager_DefaultTable(t *testing.T) {
	m := newTestManager(t)

	t.Run("all catalog models have default pricing", func(t *testing.T) {
		for _, mc := range config.DefaultModels() {
			p := m.GetPricing(mc.ID)
			require.NotNil(t, p, "missing default pricing for %s", mc.ID)
			assert.Equal(t, SourceDefault, p.Source)
			assert.Greater(t, p.InputPer1K, 0.0)
			assert.Greater(t, p.OutputPer1K, 0.0)
		}
	})

	t.Run("unknown model returns nil", func(t *testing.T) {
		assert.Nil(t, m.GetPricing("no-such-model"))
	})

	t.Run("free tier carried on default row", func(t *testing.T) {
		p := m.GetPricing("gemini-2.0-flash-lite")
		require.NotNil(t, p)
		require.NotNil(t, p.FreeTier)
		assert.Equal(t, 1500, p.FreeTier.RequestsPerMonth)
		assert.Equal(t, 1000000, p.FreeTier.TokensPerMonth)
	})
}

func TestManager_Calculate(t *testing.T) {
	m := newTestManager(t)

	t.Run("per-1k math", func(t *testing.T) {
		// gpt-4o: input 0.0025, output 0.01 per 1K.
		breakdown, err := m.Calculate("gpt-4o", domain.NewTokenUsage(1000, 500))
		require.NoError(t, err)
		assert.InDelta(t, 0.0025, breakdown.InputCost, 1e-9)
		assert.InDelta(t, 0.005, breakdown.OutputCost, 1e-9)
		assert.InDelta(t, 0.0075, breakdown.TotalCost, 1e-9)
		assert.Equal(t, "USD", breakdown.Currency)
		assert.False(t, breakdown.CalculatedAt.IsZero())
	})

	t.Run("cached and reasoning buckets billed separately", func(t *testing.T) {
		usage := domain.NewTokenUsage(1000, 1000).WithBuckets(2000, 500)
		breakdown, err := m.Calculate("claude-sonnet-4", usage)
		require.NoError(t, err)
		assert.InDelta(t, 0.003, breakdown.InputCost, 1e-9)
		assert.InDelta(t, 0.015, breakdown.OutputCost, 1e-9)
		assert.InDelta(t, 0.0006, breakdown.CachedCost, 1e-9)
		assert.InDelta(t, 0.0075, breakdown.ReasoningCost, 1e-9)
		assert.InDelta(t, 0.0261, breakdown.TotalCost, 1e-9)
	})

	t.Run("minimum charge floors tiny requests", func(t *testing.T) {
		// ~11 input and ~20 output tokens on qwen-turbo price far below
		// the 0.001 minimum.
		breakdown, err := m.Calculate("qwen-turbo", domain.NewTokenUsage(11, 20))
		require.NoError(t, err)
		assert.InDelta(t, 0.001, breakdown.TotalCost, 1e-9)
	})

	t.Run("cost is additive above the minimum charge", func(t *testing.T) {
		a := domain.NewTokenUsage(40000, 20000)
		b := domain.NewTokenUsage(10000, 5000)

		costA, err := m.Calculate("gpt-4o", a)
		require.NoError(t, err)
		costB, err := m.Calculate("gpt-4o", b)
		require.NoError(t, err)
		costSum, err := m.Calculate("gpt-4o", a.Add(b))
		require.NoError(t, err)

		assert.InDelta(t, costA.TotalCost+costB.TotalCost, costSum.TotalCost, 1e-9)
	})

	t.Run("deterministic for identical inputs", func(t *testing.T) {
		usage := domain.NewTokenUsage(1234, 567)
		first, err := m.Calculate("qwen-plus", usage)
		require.NoError(t, err)
		second, err := m.Calculate("qwen-plus", usage)
		require.NoError(t, err)
		assert.Equal(t, first.TotalCost, second.TotalCost)
	})

	t.Run("unknown model is MODEL_UNAVAILABLE", func(t *testing.T) {
		_, err := m.Calculate("no-such-model", domain.NewTokenUsage(10, 10))
		require.Error(t, err)
		assert.Equal(t, domain.CodeModelUnavailable, domain.CodeOf(err))
	})

	t.Run("zero usage still pays the minimum charge", func(t *testing.T) {
		breakdown, err := m.Calculate("gpt-5", domain.TokenUsage{})
		require.NoError(t, err)
		assert.InDelta(t, 0.005, breakdown.TotalCost, 1e-9)
	})
}

func TestManager_Precedence(t *testing.T) {
	m := newTestManager(t)

	t.Run("config override beats default", func(t *testing.T) {
		m.ApplyConfigOverrides([]config.ModelConfig{{
			ID: "gpt-4o",
			Pricing: &config.ModelPricingOverride{
				InputPer1K:  0.002,
				OutputPer1K: 0.008,
			},
		}})

		p := m.GetPricing("gpt-4o")
		require.NotNil(t, p)
		assert.Equal(t, SourceConfigOverride, p.Source)
		assert.Equal(t, 0.002, p.InputPer1K)
		assert.Equal(t, 0.008, p.OutputPer1K)
	})

	t.Run("partial config override keeps default fields", func(t *testing.T) {
		p := m.GetPricing("gpt-4o")
		require.NotNil(t, p)
		// MinimumCharge was not overridden, so the default survives.
		assert.Equal(t, 0.002, p.MinimumCharge)
	})

	t.Run("database override beats config override", func(t *testing.T) {
		err := m.UpdatePricing(context.Background(), "gpt-4o", &Pricing{
			InputPer1K:    0.001,
			OutputPer1K:   0.004,
			MinimumCharge: 0.003,
		})
		require.NoError(t, err)

		p := m.GetPricing("gpt-4o")
		require.NotNil(t, p)
		assert.Equal(t, SourceDBOverride, p.Source)
		assert.Equal(t, 0.001, p.InputPer1K)
		assert.Equal(t, 0.003, p.MinimumCharge)
	})

	t.Run("other models untouched", func(t *testing.T) {
		p := m.GetPricing("qwen-max")
		require.NotNil(t, p)
		assert.Equal(t, SourceDefault, p.Source)
	})
}

func TestManager_Compare(t *testing.T) {
	m := newTestManager(t)
	usage := domain.NewTokenUsage(5000, 2000)

	t.Run("prices every model", func(t *testing.T) {
		out, err := m.Compare([]string{"qwen-turbo", "gpt-4o", "claude-opus-4"}, usage)
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.Less(t, out["qwen-turbo"].TotalCost, out["gpt-4o"].TotalCost)
		assert.Less(t, out["gpt-4o"].TotalCost, out["claude-opus-4"].TotalCost)
	})

	t.Run("one unknown id fails the call", func(t *testing.T) {
		_, err := m.Compare([]string{"gpt-4o", "no-such-model"}, usage)
		require.Error(t, err)
		assert.Equal(t, domain.CodeModelUnavailable, domain.CodeOf(err))
	})
}

func TestManager_Estimate(t *testing.T) {
	m := newTestManager(t)

	breakdown, err := m.Estimate("gpt-4o", domain.TokenEstimate{Input: 1000, Output: 500})
	require.NoError(t, err)

	direct, err := m.Calculate("gpt-4o", domain.NewTokenUsage(1000, 500))
	require.NoError(t, err)
	assert.Equal(t, direct.TotalCost, breakdown.TotalCost)
}

type fakeRepo struct {
	rows     map[string]*Pricing
	upserted []string
}

func (f *fakeRepo) List(_ context.Context) (map[string]*Pricing, error) {
	out := make(map[string]*Pricing, len(f.rows))
	for id, p := range f.rows {
		out[id] = p.clone()
	}
	return out, nil
}

func (f *fakeRepo) Upsert(_ context.Context, modelID string, p *Pricing) error {
	if f.rows == nil {
		f.rows = make(map[string]*Pricing)
	}
	f.rows[modelID] = p.clone()
	f.upserted = append(f.upserted, modelID)
	return nil
}

func TestManager_LoadDatabaseOverrides(t *testing.T) {
	m := newTestManager(t)
	repo := &fakeRepo{rows: map[string]*Pricing{
		"qwen-turbo": {InputPer1K: 0.0001, OutputPer1K: 0.0004, LastUpdated: time.Now()},
	}}
	m.SetRepository(repo)

	require.NoError(t, m.LoadDatabaseOverrides(context.Background()))

	p := m.GetPricing("qwen-turbo")
	require.NotNil(t, p)
	assert.Equal(t, SourceDBOverride, p.Source)
	assert.Equal(t, 0.0001, p.InputPer1K)
}

func TestManager_UpdatePricing_Persists(t *testing.T) {
	m := newTestManager(t)
	repo := &fakeRepo{}
	m.SetRepository(repo)

	err := m.UpdatePricing(context.Background(), "gpt-5", &Pricing{
		InputPer1K:  0.0015,
		OutputPer1K: 0.012,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-5"}, repo.upserted)

	p := m.GetPricing("gpt-5")
	require.NotNil(t, p)
	assert.Equal(t, SourceDBOverride, p.Source)
	assert.Equal(t, 0.0015, p.InputPer1K)
}

type fakeInvalidator struct {
	dropped []string
	err     error
}

func (f *fakeInvalidator) Invalidate(_ context.Context, modelID string) error {
	f.dropped = append(f.dropped, modelID)
	return f.err
}

func TestManager_UpdatePricing_Invalidates(t *testing.T) {
	m := newTestManager(t)
	inv := &fakeInvalidator{}
	m.SetInvalidator(inv)

	require.NoError(t, m.UpdatePricing(context.Background(), "gpt-4o", &Pricing{
		InputPer1K:  0.002,
		OutputPer1K: 0.009,
	}))
	assert.Equal(t, []string{"gpt-4o"}, inv.dropped)

	t.Run("invalidation failure does not fail the update", func(t *testing.T) {
		inv.err = errors.New("redis down")

		require.NoError(t, m.UpdatePricing(context.Background(), "gpt-5", &Pricing{
			InputPer1K:  0.0015,
			OutputPer1K: 0.012,
		}))

		p := m.GetPricing("gpt-5")
		require.NotNil(t, p)
		assert.Equal(t, SourceDBOverride, p.Source)
	})
}

func TestManager_ListModels(t *testing.T) {
	m := newTestManager(t)
	m.ApplyConfigOverrides([]config.ModelConfig{{
		ID:      "gpt-4o",
		Pricing: &config.ModelPricingOverride{InputPer1K: 0.002},
	}})

	sources := m.ListModels()
	assert.Equal(t, SourceConfigOverride, sources["gpt-4o"])
	assert.Equal(t, SourceDefault, sources["qwen-turbo"])
}
