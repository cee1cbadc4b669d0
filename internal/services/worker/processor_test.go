package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/models"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/budget"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/pricing"
	redisinfra "github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/redis"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/usage"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/testutil"
)

type workerEnv struct {
	processor *Processor
	queue     *usage.Queue
	locks     *redisinfra.LockManager
	cache     *budget.Cache
	db        *gorm.DB
	client    *goredis.Client
}

func newWorkerEnv(t *testing.T) *workerEnv {
	t.Helper()

	db, cleanup := testutil.NewTestDB(t)
	t.Cleanup(cleanup)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := zap.NewNop()
	queue := usage.NewQueue(&usage.QueueConfig{
		Client:     client,
		Logger:     logger,
		BatchSize:  10,
		MaxRetries: 3,
	})
	locks := redisinfra.NewLockManager(client, logger)
	cache := budget.NewCache(client, time.Minute, logger)
	events := redisinfra.NewEventPublisher(client, "worker-test", logger)

	processor := New(Config{
		DB:             db,
		Logger:         logger,
		Queue:          queue,
		Locks:          locks,
		Events:         events,
		Cache:          cache,
		BatchSize:      10,
		BudgetResetDay: 1,
		Timezone:       "UTC",
	})

	return &workerEnv{
		processor: processor,
		queue:     queue,
		locks:     locks,
		cache:     cache,
		db:        db,
		client:    client,
	}
}

func (e *workerEnv) ledgerRow(t *testing.T, month, scope, key string) models.MonthlyLedger {
	t.Helper()
	var row models.MonthlyLedger
	require.NoError(t, e.db.
		Where("month = ? AND scope = ? AND key = ?", month, scope, key).
		First(&row).Error)
	return row
}

func (e *workerEnv) streamEvents(t *testing.T, eventType redisinfra.EventType) []goredis.XMessage {
	t.Helper()
	entries, err := e.client.XRange(context.Background(), "orchestrator:settlement_events", "-", "+").Result()
	require.NoError(t, err)

	var out []goredis.XMessage
	for _, entry := range entries {
		if entry.Values["event_type"] == string(eventType) {
			out = append(out, entry)
		}
	}
	return out
}

func TestProcessor_SettlePersistsBatch(t *testing.T) {
	e := newWorkerEnv(t)
	ctx := context.Background()

	augustTS := time.Date(2026, time.August, 18, 12, 0, 0, 0, time.UTC)
	julyTS := time.Date(2026, time.July, 31, 23, 0, 0, 0, time.UTC)

	require.NoError(t, e.queue.Enqueue(ctx, &usage.Record{
		RequestID: "req-1", SessionKey: "sess-a", Period: "2026-08", Timestamp: augustTS,
		Model: "qwen-turbo", Provider: "alibaba", Tier: 0,
		TotalTokens: 100, TotalCost: 0.001, LatencyMS: 40, Success: true,
	}))
	require.NoError(t, e.queue.Enqueue(ctx, &usage.Record{
		RequestID: "req-2", SessionKey: "sess-a", Period: "2026-08", Timestamp: augustTS,
		Model: "claude-3-5-haiku", Provider: "anthropic", Tier: 1,
		TotalTokens: 300, TotalCost: 0.002, LatencyMS: 120, Success: true,
	}))
	// No period stamp: the worker derives the budget month from the
	// timestamp.
	require.NoError(t, e.queue.Enqueue(ctx, &usage.Record{
		RequestID: "req-3", SessionKey: "sess-b", Timestamp: julyTS,
		Model: "qwen-turbo", Provider: "alibaba", Tier: 0,
		Success: false, ErrorCode: "RATE_LIMIT_EXCEEDED",
	}))

	require.NoError(t, e.processor.Settle(ctx))

	t.Run("queue drained", func(t *testing.T) {
		stats, err := e.queue.Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.TotalPending)
	})

	t.Run("monthly totals per period", func(t *testing.T) {
		aug := e.ledgerRow(t, "2026-08", budget.ScopeTotal, budget.ScopeTotal)
		assert.Equal(t, int64(2), aug.Requests)
		assert.Equal(t, int64(2), aug.SuccessfulRequests)
		assert.Equal(t, int64(0), aug.FailedRequests)
		assert.Equal(t, int64(400), aug.TotalTokens)
		assert.InDelta(t, 0.003, aug.TotalCost, 1e-9)

		jul := e.ledgerRow(t, "2026-07", budget.ScopeTotal, budget.ScopeTotal)
		assert.Equal(t, int64(1), jul.Requests)
		assert.Equal(t, int64(1), jul.FailedRequests)
		assert.Zero(t, jul.TotalCost)
	})

	t.Run("model and tier scopes", func(t *testing.T) {
		qwen := e.ledgerRow(t, "2026-08", budget.ScopeModel, "qwen-turbo")
		assert.Equal(t, int64(1), qwen.Requests)
		assert.InDelta(t, 0.001, qwen.TotalCost, 1e-9)

		haiku := e.ledgerRow(t, "2026-08", budget.ScopeModel, "claude-3-5-haiku")
		assert.Equal(t, int64(300), haiku.TotalTokens)
		assert.InDelta(t, 0.002, haiku.TotalCost, 1e-9)

		tier0 := e.ledgerRow(t, "2026-08", budget.ScopeTier, "0")
		assert.Equal(t, int64(1), tier0.Requests)
		tier1 := e.ledgerRow(t, "2026-08", budget.ScopeTier, "1")
		assert.InDelta(t, 0.002, tier1.TotalCost, 1e-9)
	})

	t.Run("session rows refreshed", func(t *testing.T) {
		var sessA models.UsageSession
		require.NoError(t, e.db.Where("session_key = ?", "sess-a").First(&sessA).Error)
		assert.Equal(t, int64(2), sessA.TotalRequests)
		assert.Equal(t, int64(2), sessA.SuccessfulRequests)
		assert.Equal(t, int64(400), sessA.TotalTokens)
		assert.InDelta(t, 0.003, sessA.TotalCost, 1e-9)

		breakdown := make(map[string]*usage.ModelUsage)
		require.NoError(t, json.Unmarshal(sessA.ModelBreakdown, &breakdown))
		require.Contains(t, breakdown, "qwen-turbo")
		require.Contains(t, breakdown, "claude-3-5-haiku")
		assert.Equal(t, 1, breakdown["qwen-turbo"].Requests)
		assert.Equal(t, int64(120), breakdown["claude-3-5-haiku"].TotalLatencyMS)

		var sessB models.UsageSession
		require.NoError(t, e.db.Where("session_key = ?", "sess-b").First(&sessB).Error)
		assert.Equal(t, int64(1), sessB.TotalRequests)
		assert.Equal(t, int64(1), sessB.FailedRequests)
	})

	t.Run("daily rollups", func(t *testing.T) {
		var day models.DailyCost
		require.NoError(t, e.db.Where("date = ?", "2026-08-18").First(&day).Error)
		assert.Equal(t, int64(2), day.TotalRequests)
		assert.Equal(t, int64(400), day.TotalTokens)
		assert.InDelta(t, 0.003, day.TotalCost, 1e-9)

		perModel := make(map[string]float64)
		require.NoError(t, json.Unmarshal(day.PerModel, &perModel))
		assert.InDelta(t, 0.001, perModel["qwen-turbo"], 1e-9)
		assert.InDelta(t, 0.002, perModel["claude-3-5-haiku"], 1e-9)

		var julDay models.DailyCost
		require.NoError(t, e.db.Where("date = ?", "2026-07-31").First(&julDay).Error)
		assert.Equal(t, int64(1), julDay.TotalRequests)
	})

	t.Run("shared spend counter converged", func(t *testing.T) {
		spent, err := e.cache.SpentFor(ctx, "2026-08")
		require.NoError(t, err)
		assert.InDelta(t, 0.003, spent, 1e-9)
	})

	t.Run("settlement events published per period", func(t *testing.T) {
		assert.Len(t, e.streamEvents(t, redisinfra.EventTypeSettlement), 2)
	})
}

func TestProcessor_SettleAccumulatesAcrossRounds(t *testing.T) {
	e := newWorkerEnv(t)
	ctx := context.Background()

	ts := time.Date(2026, time.August, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, e.queue.Enqueue(ctx, &usage.Record{
		RequestID: "req-1", SessionKey: "s1", Period: "2026-08", Timestamp: ts,
		Model: "gemini-2.0-flash-lite", Tier: 0, TotalTokens: 200,
		FreeRequestUsed: true, FreeTokensUsed: 200, Success: true,
	}))
	require.NoError(t, e.processor.Settle(ctx))

	require.NoError(t, e.queue.Enqueue(ctx, &usage.Record{
		RequestID: "req-2", SessionKey: "s1", Period: "2026-08", Timestamp: ts,
		Model: "gemini-2.0-flash-lite", Tier: 0, TotalTokens: 150,
		TotalCost: 0.002, Success: true,
	}))
	require.NoError(t, e.processor.Settle(ctx))

	t.Run("ledger upserts are additive", func(t *testing.T) {
		total := e.ledgerRow(t, "2026-08", budget.ScopeTotal, budget.ScopeTotal)
		assert.Equal(t, int64(2), total.Requests)
		assert.Equal(t, int64(350), total.TotalTokens)
		assert.InDelta(t, 0.002, total.TotalCost, 1e-9)
	})

	t.Run("free-tier consumption lands on the model row", func(t *testing.T) {
		row := e.ledgerRow(t, "2026-08", budget.ScopeModel, "gemini-2.0-flash-lite")
		assert.Equal(t, int64(1), row.FreeRequestsUsed)
		assert.Equal(t, int64(200), row.FreeTokensUsed)
	})

	t.Run("session row accumulates", func(t *testing.T) {
		var row models.UsageSession
		require.NoError(t, e.db.Where("session_key = ?", "s1").First(&row).Error)
		assert.Equal(t, int64(2), row.TotalRequests)
	})
}

func TestProcessor_SettleSkipsWhenLockHeld(t *testing.T) {
	e := newWorkerEnv(t)
	ctx := context.Background()

	require.NoError(t, e.queue.Enqueue(ctx, &usage.Record{
		RequestID: "req-1", SessionKey: "s1", Period: "2026-08",
		Timestamp: time.Now(), Model: "qwen-turbo", Success: true,
	}))

	lock, err := e.locks.Acquire(ctx, settleLock, time.Minute)
	require.NoError(t, err)

	require.NoError(t, e.processor.Settle(ctx))
	stats, err := e.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.MainQueue, "held lock must leave the queue untouched")

	require.NoError(t, lock.Release(ctx))
	require.NoError(t, e.processor.Settle(ctx))
	stats, err = e.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalPending)
}

func TestProcessor_FailedBatchRequeuesAndDeadLetters(t *testing.T) {
	e := newWorkerEnv(t)
	ctx := context.Background()

	// Final allowed attempt: one more failure dead-letters the record.
	require.NoError(t, e.queue.Enqueue(ctx, &usage.Record{
		RequestID: "req-1", SessionKey: "s1", Period: "2026-08",
		Timestamp: time.Now(), Model: "qwen-turbo", Success: true, Retries: 2,
	}))

	require.NoError(t, e.db.Migrator().DropTable(&models.MonthlyLedger{}))
	require.Error(t, e.processor.Settle(ctx))

	stats, err := e.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.DeadLetterQueue)
	assert.Zero(t, stats.RetryQueue)

	assert.Len(t, e.streamEvents(t, redisinfra.EventTypeDeadLetter), 1)
}

func TestProcessor_FailedBatchSchedulesRetry(t *testing.T) {
	e := newWorkerEnv(t)
	ctx := context.Background()

	require.NoError(t, e.queue.Enqueue(ctx, &usage.Record{
		RequestID: "req-1", SessionKey: "s1", Period: "2026-08",
		Timestamp: time.Now(), Model: "qwen-turbo", Success: true,
	}))

	require.NoError(t, e.db.Migrator().DropTable(&models.MonthlyLedger{}))
	require.Error(t, e.processor.Settle(ctx))

	stats, err := e.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.RetryQueue)
	assert.Zero(t, stats.DeadLetterQueue)
}

func TestProcessor_ResetDueFreeTiers(t *testing.T) {
	e := newWorkerEnv(t)
	ctx := context.Background()

	manager, err := pricing.NewManager(zap.NewNop())
	require.NoError(t, err)
	manager.ApplyConfigOverrides([]config.ModelConfig{{
		ID: "gemini-2.0-flash-lite",
		Pricing: &config.ModelPricingOverride{
			FreeTier: &config.FreeTierConfig{RequestsPerMonth: 1500, ResetDay: 15},
		},
	}})
	e.processor.pricing = manager
	e.processor.nowFn = func() time.Time {
		return time.Date(2026, time.March, 15, 8, 0, 0, 0, time.UTC)
	}

	seed := models.MonthlyLedger{
		Month: "2026-03", Scope: budget.ScopeModel, Key: "gemini-2.0-flash-lite",
		Requests: 900, SuccessfulRequests: 900, TotalTokens: 90000,
		FreeRequestsUsed: 900, FreeTokensUsed: 90000,
	}
	require.NoError(t, e.db.Create(&seed).Error)

	require.NoError(t, e.processor.ResetDueFreeTiers(ctx))

	t.Run("free counters zeroed, totals kept", func(t *testing.T) {
		row := e.ledgerRow(t, "2026-03", budget.ScopeModel, "gemini-2.0-flash-lite")
		assert.Zero(t, row.FreeRequestsUsed)
		assert.Zero(t, row.FreeTokensUsed)
		assert.Equal(t, int64(900), row.Requests)
		assert.Equal(t, int64(90000), row.TotalTokens)
	})

	t.Run("reset happens once per day", func(t *testing.T) {
		require.NoError(t, e.processor.ResetDueFreeTiers(ctx))
		assert.Len(t, e.streamEvents(t, redisinfra.EventTypeFreeTierReset), 1)
	})

	t.Run("off-cycle day is a no-op", func(t *testing.T) {
		e.processor.nowFn = func() time.Time {
			return time.Date(2026, time.March, 16, 8, 0, 0, 0, time.UTC)
		}
		require.NoError(t, e.db.Model(&models.MonthlyLedger{}).
			Where("scope = ?", budget.ScopeModel).
			Update("free_requests_used", 5).Error)

		require.NoError(t, e.processor.ResetDueFreeTiers(ctx))
		row := e.ledgerRow(t, "2026-03", budget.ScopeModel, "gemini-2.0-flash-lite")
		assert.Equal(t, int64(5), row.FreeRequestsUsed)
	})
}

func TestProcessor_Lifecycle(t *testing.T) {
	e := newWorkerEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, e.processor.Start(ctx))

	stats, err := e.processor.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Running)
	assert.Equal(t, 10, stats.BatchSize)

	e.processor.Stop()

	stats, err = e.processor.Stats(ctx)
	require.NoError(t, err)
	assert.False(t, stats.Running)
}
