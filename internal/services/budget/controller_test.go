package budget

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/pricing"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/usage"
)

type memoryAlertStore struct {
	mu     sync.Mutex
	alerts []string
}

func (m *memoryAlertStore) Append(_ context.Context, kind, _ string, _ map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, kind)
	return nil
}

func (m *memoryAlertStore) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.alerts...)
}

type controllerFixture struct {
	controller *Controller
	pricing    *pricing.Manager
	tracker    *usage.Tracker
	queue      *usage.Queue
	alerts     *memoryAlertStore
}

func newFixture(t *testing.T, cfg config.BudgetConfig) *controllerFixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	pm, err := pricing.NewManager(zap.NewNop())
	require.NoError(t, err)

	tracker := usage.NewTracker(zap.NewNop())
	queue := usage.NewQueue(&usage.QueueConfig{Client: client, Logger: zap.NewNop()})
	alerts := &memoryAlertStore{}

	controller := NewController(ControllerConfig{
		Ledger:  NewLedger(cfg, zap.NewNop()),
		Pricing: pm,
		Tracker: tracker,
		Queue:   queue,
		Alerts:  alerts,
		Cache:   NewCache(client, 0, zap.NewNop()),
		Logger:  zap.NewNop(),
	})

	return &controllerFixture{
		controller: controller,
		pricing:    pm,
		tracker:    tracker,
		queue:      queue,
		alerts:     alerts,
	}
}

func TestController_PreRequestCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("ordinary request approved", func(t *testing.T) {
		f := newFixture(t, testBudgetConfig())
		d := f.controller.PreRequestCheck(ctx, "gpt-4o", "s1", domain.TokenEstimate{Input: 1000, Output: 500})
		assert.True(t, d.Approved)
		assert.Empty(t, d.Warnings)
		assert.InDelta(t, 0.0075, d.EstimatedCost, 1e-9)
	})

	t.Run("per-request cap denies", func(t *testing.T) {
		cfg := testBudgetConfig()
		cfg.MaxRequestCost = 0.5
		f := newFixture(t, cfg)

		// claude-opus-4 at 100K output prices far above $0.50.
		d := f.controller.PreRequestCheck(ctx, "claude-opus-4", "s1", domain.TokenEstimate{Input: 10000, Output: 100000})
		assert.False(t, d.Approved)
		assert.Equal(t, domain.CodeCostLimitExceeded, d.Code)
		assert.Contains(t, d.Reason, "max_request_cost")
	})

	t.Run("session cap denies once accumulated", func(t *testing.T) {
		cfg := testBudgetConfig()
		cfg.MaxSessionCost = 1.0
		f := newFixture(t, cfg)

		f.tracker.Record("s1", usage.RecordParams{ModelID: "gpt-4o", Cost: 0.99, Success: true})

		d := f.controller.PreRequestCheck(ctx, "gpt-4o", "s1", domain.TokenEstimate{Input: 5000, Output: 2000})
		assert.False(t, d.Approved)
		assert.Equal(t, domain.CodeCostLimitExceeded, d.Code)
		assert.Contains(t, d.Reason, "max_session_cost")
	})

	t.Run("critical threshold denies", func(t *testing.T) {
		cfg := testBudgetConfig()
		cfg.MonthlyBudget = 1.0
		f := newFixture(t, cfg)

		f.controller.Ledger().Hydrate(0.95, 1, nil, nil, nil)

		d := f.controller.PreRequestCheck(ctx, "gpt-4o", "s1", domain.TokenEstimate{Input: 1000, Output: 1000})
		assert.False(t, d.Approved)
		assert.Equal(t, domain.CodeBudgetExceeded, d.Code)
	})

	t.Run("warning threshold admits with warning", func(t *testing.T) {
		cfg := testBudgetConfig()
		cfg.MonthlyBudget = 1.0
		f := newFixture(t, cfg)

		f.controller.Ledger().Hydrate(0.85, 1, nil, nil, nil)

		d := f.controller.PreRequestCheck(ctx, "qwen-turbo", "s1", domain.TokenEstimate{Input: 100, Output: 100})
		assert.True(t, d.Approved)
		require.Len(t, d.Warnings, 1)
		assert.Contains(t, d.Warnings[0], "warning threshold")
	})

	t.Run("auto-pause denies everything at the cap", func(t *testing.T) {
		cfg := testBudgetConfig()
		cfg.MonthlyBudget = 1.0
		cfg.AutoPauseAtLimit = true
		f := newFixture(t, cfg)

		f.controller.Ledger().Hydrate(1.2, 5, nil, nil, nil)

		d := f.controller.PreRequestCheck(ctx, "qwen-turbo", "s1", domain.TokenEstimate{Input: 1, Output: 1})
		assert.False(t, d.Approved)
		assert.Equal(t, domain.CodeBudgetExceeded, d.Code)
		assert.Contains(t, d.Reason, "auto-pause")
	})

	t.Run("remaining free-tier request estimates zero", func(t *testing.T) {
		f := newFixture(t, testBudgetConfig())
		d := f.controller.PreRequestCheck(ctx, "gemini-2.0-flash-lite", "s1", domain.TokenEstimate{Input: 1000, Output: 500})
		assert.True(t, d.Approved)
		assert.Zero(t, d.EstimatedCost)
	})

	t.Run("unknown model denied", func(t *testing.T) {
		f := newFixture(t, testBudgetConfig())
		d := f.controller.PreRequestCheck(ctx, "no-such-model", "s1", domain.TokenEstimate{Input: 10, Output: 10})
		assert.False(t, d.Approved)
		assert.Equal(t, domain.CodeModelUnavailable, d.Code)
	})
}

func TestController_PostRequestProcessing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testBudgetConfig())

	breakdown, err := f.controller.PostRequestProcessing(ctx, PostParams{
		SessionKey: "s1",
		RequestID:  "req-1",
		ModelID:    "gpt-4o",
		Provider:   "openai",
		Tier:       2,
		TaskType:   "general",
		Usage:      domain.NewTokenUsage(1000, 500),
		LatencyMS:  850,
		Success:    true,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.0075, breakdown.TotalCost, 1e-9)

	t.Run("ledger committed", func(t *testing.T) {
		status := f.controller.Status()
		assert.InDelta(t, 0.0075, status.Spent, 1e-9)
		assert.InDelta(t, 0.0075, status.PerTier[2].Spent, 1e-9)
	})

	t.Run("session committed", func(t *testing.T) {
		s := f.tracker.Get("s1")
		require.NotNil(t, s)
		assert.Equal(t, 1, s.TotalRequests)
		assert.Equal(t, 1500, s.TotalTokens)
		assert.InDelta(t, 0.0075, s.TotalCost, 1e-9)
	})

	t.Run("usage record queued", func(t *testing.T) {
		records, err := f.queue.DequeueBatch(ctx)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "req-1", records[0].RequestID)
		assert.Equal(t, 2, records[0].Tier)
		assert.InDelta(t, 0.0075, records[0].TotalCost, 1e-9)
	})

	t.Run("failures counted without charge distortion", func(t *testing.T) {
		_, err := f.controller.PostRequestProcessing(ctx, PostParams{
			SessionKey: "s1",
			RequestID:  "req-2",
			ModelID:    "gpt-4o",
			Provider:   "openai",
			Tier:       2,
			Usage:      domain.TokenUsage{},
			LatencyMS:  30000,
			Success:    false,
			ErrorCode:  domain.CodeTimeout,
		})
		require.NoError(t, err)

		s := f.tracker.Get("s1")
		assert.Equal(t, 1, s.FailedRequests)
		assert.Equal(t, 1, s.ModelBreakdown["gpt-4o"].Errors)
	})

	t.Run("minimum charge skipped on zero-usage failure", func(t *testing.T) {
		before := f.controller.Status().Spent

		breakdown, err := f.controller.PostRequestProcessing(ctx, PostParams{
			SessionKey: "s1",
			RequestID:  "req-3",
			ModelID:    "gpt-5",
			Provider:   "openai",
			Tier:       3,
			Usage:      domain.TokenUsage{},
			Success:    false,
			ErrorCode:  domain.CodeRateLimitExceeded,
		})
		require.NoError(t, err)

		assert.Zero(t, breakdown.TotalCost)
		assert.InDelta(t, before, f.controller.Status().Spent, 1e-9)
	})
}

func TestController_AlertsFireOncePerCrossing(t *testing.T) {
	ctx := context.Background()
	cfg := testBudgetConfig()
	cfg.MonthlyBudget = 0.01
	cfg.CriticalThreshold = 0.95
	f := newFixture(t, cfg)

	// One expensive request blows straight through all thresholds.
	_, err := f.controller.PostRequestProcessing(ctx, PostParams{
		SessionKey: "s1",
		RequestID:  "req-1",
		ModelID:    "gpt-4o",
		Tier:       2,
		Usage:      domain.NewTokenUsage(4000, 2000),
		Success:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{AlertKindWarning, AlertKindCritical, AlertKindCapExceeded}, f.alerts.kinds())

	// The next request crosses nothing new.
	_, err = f.controller.PostRequestProcessing(ctx, PostParams{
		SessionKey: "s1",
		RequestID:  "req-2",
		ModelID:    "gpt-4o",
		Tier:       2,
		Usage:      domain.NewTokenUsage(100, 100),
		Success:    true,
	})
	require.NoError(t, err)
	assert.Len(t, f.alerts.kinds(), 3)
}

func TestController_FreeTierConsumedBeforeCharging(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testBudgetConfig())

	require.NoError(t, f.pricing.UpdatePricing(ctx, "trial-model", &pricing.Pricing{
		InputPer1K:  0.01,
		OutputPer1K: 0.02,
		FreeTier:    &pricing.FreeTier{RequestsPerMonth: 1, ResetDay: 1},
	}))

	first, err := f.controller.PostRequestProcessing(ctx, PostParams{
		SessionKey: "s1", RequestID: "r1", ModelID: "trial-model", Tier: 1,
		Usage: domain.NewTokenUsage(1000, 1000), Success: true,
	})
	require.NoError(t, err)
	assert.Zero(t, first.TotalCost)

	second, err := f.controller.PostRequestProcessing(ctx, PostParams{
		SessionKey: "s1", RequestID: "r2", ModelID: "trial-model", Tier: 1,
		Usage: domain.NewTokenUsage(1000, 1000), Success: true,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.03, second.TotalCost, 1e-9)

	status := f.controller.Status()
	assert.InDelta(t, 0.03, status.Spent, 1e-9)
	assert.Equal(t, 1, status.FreeTier["trial-model"].RequestsUsed)
}

func TestController_UpdateSettings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testBudgetConfig())

	cfg := testBudgetConfig()
	cfg.MonthlyBudget = 500
	f.controller.UpdateSettings(ctx, cfg)

	assert.InDelta(t, 500.0, f.controller.Status().MonthlyBudget, 1e-9)
}
