// Package worker drains the Redis usage queue into Postgres. The request
// path only ever touches Redis; everything durable (ledger rows, session
// rows, daily rollups) is written here, so a worker outage delays
// persistence without losing or double-charging anything.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/models"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/budget"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/pricing"
	redisinfra "github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/redis"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/trace"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/usage"
)

const settleLock = "usage_settlement"

// Processor is the reconciliation loop: batch drain, additive ledger
// upserts, session refresh, daily rollups, and free-tier cycle resets.
// A distributed lock keeps sibling instances from double applying.
type Processor struct {
	db      *gorm.DB
	logger  *zap.Logger
	queue   *usage.Queue
	locks   *redisinfra.LockManager
	events  *redisinfra.EventPublisher
	cache   *budget.Cache
	sink    trace.Sink
	pricing *pricing.Manager

	batchSize      int
	interval       time.Duration
	retryInterval  time.Duration
	rollupInterval time.Duration
	resetDay       int
	loc            *time.Location
	nowFn          func() time.Time

	stopCh chan struct{}
}

type Config struct {
	DB      *gorm.DB
	Logger  *zap.Logger
	Queue   *usage.Queue
	Locks   *redisinfra.LockManager
	Events  *redisinfra.EventPublisher
	Cache   *budget.Cache
	Sink    trace.Sink
	Pricing *pricing.Manager

	// BatchSize should match the queue's batch size; a short batch means
	// the queue is drained.
	BatchSize      int
	Interval       time.Duration
	RetryInterval  time.Duration
	RollupInterval time.Duration
	BudgetResetDay int
	Timezone       string
}

func New(cfg Config) *Processor {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = 5 * time.Minute
	}
	if cfg.RollupInterval == 0 {
		cfg.RollupInterval = 15 * time.Minute
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil || cfg.Timezone == "" {
		loc = time.UTC
	}

	return &Processor{
		db:             cfg.DB,
		logger:         cfg.Logger,
		queue:          cfg.Queue,
		locks:          cfg.Locks,
		events:         cfg.Events,
		cache:          cfg.Cache,
		sink:           cfg.Sink,
		pricing:        cfg.Pricing,
		batchSize:      cfg.BatchSize,
		interval:       cfg.Interval,
		retryInterval:  cfg.RetryInterval,
		rollupInterval: cfg.RollupInterval,
		resetDay:       cfg.BudgetResetDay,
		loc:            loc,
		nowFn:          time.Now,
		stopCh:         make(chan struct{}),
	}
}

// Start spawns the settlement, retry, and rollup loops.
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Info("starting reconciliation worker",
		zap.Int("batch_size", p.batchSize),
		zap.Duration("interval", p.interval))

	go p.settleLoop(ctx)
	go p.retryLoop(ctx)
	go p.rollupLoop(ctx)
	return nil
}

// Stop ends the loops. A round already holding the lock finishes its batch.
func (p *Processor) Stop() {
	p.logger.Info("stopping reconciliation worker")
	close(p.stopCh)
}

func (p *Processor) settleLoop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.Settle(ctx); err != nil {
				p.logger.Error("settlement round failed", zap.Error(err))
			}
		}
	}
}

func (p *Processor) retryLoop(ctx context.Context) {
	ticker := time.NewTicker(p.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.queue.ProcessRetryQueue(ctx); err != nil {
				p.logger.Error("retry queue processing failed", zap.Error(err))
			}
		}
	}
}

func (p *Processor) rollupLoop(ctx context.Context) {
	ticker := time.NewTicker(p.rollupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.RunRollups(ctx)
		}
	}
}

// Settle runs one locked settlement round: drain the queue batch by batch
// and persist each batch in a transaction. Returns nil when another
// instance holds the lock.
func (p *Processor) Settle(ctx context.Context) error {
	if p.locks != nil {
		lock, err := p.locks.Acquire(ctx, settleLock, 2*time.Minute)
		if err != nil {
			p.logger.Debug("settlement lock busy, skipping round")
			return nil
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				p.logger.Warn("settlement lock release failed", zap.Error(err))
			}
		}()
	}

	for {
		records, err := p.queue.DequeueBatch(ctx)
		if err != nil {
			return fmt.Errorf("failed to dequeue usage batch: %w", err)
		}
		if len(records) == 0 {
			return nil
		}

		if err := p.persistBatch(ctx, records); err != nil {
			p.logger.Error("usage batch not persisted, re-queueing",
				zap.Int("count", len(records)), zap.Error(err))
			p.requeueFailed(ctx, records, err)
			return err
		}

		// A short batch means the queue is drained.
		if len(records) < p.batchSize {
			return nil
		}
	}
}

type ledgerKey struct {
	month string
	scope string
	key   string
}

// persistBatch aggregates the batch in memory and lands it in one
// transaction: ledger upserts are additive so concurrent periods stay
// correct even if the lock ever fails open.
func (p *Processor) persistBatch(ctx context.Context, records []*usage.Record) error {
	ledger := make(map[ledgerKey]*models.MonthlyLedger)
	sessions := make(map[string][]*usage.Record)
	daily := make(map[string]*models.DailyCost)
	dailyPerModel := make(map[string]map[string]float64)

	for _, rec := range records {
		month := rec.Period
		if month == "" {
			month = budget.PeriodKey(rec.Timestamp, p.resetDay, p.loc)
		}

		keys := []ledgerKey{
			{month: month, scope: budget.ScopeTotal, key: budget.ScopeTotal},
			{month: month, scope: budget.ScopeModel, key: rec.Model},
			{month: month, scope: budget.ScopeTier, key: strconv.Itoa(rec.Tier)},
		}
		for _, lk := range keys {
			row, ok := ledger[lk]
			if !ok {
				row = &models.MonthlyLedger{}
				ledger[lk] = row
			}
			row.Requests++
			if rec.Success {
				row.SuccessfulRequests++
			} else {
				row.FailedRequests++
			}
			row.TotalTokens += int64(rec.TotalTokens)
			row.TotalCost += rec.TotalCost

			if lk.scope == budget.ScopeModel {
				if rec.FreeRequestUsed {
					row.FreeRequestsUsed++
				}
				row.FreeTokensUsed += int64(rec.FreeTokensUsed)
			}
		}

		if rec.SessionKey != "" {
			sessions[rec.SessionKey] = append(sessions[rec.SessionKey], rec)
		}

		date := rec.Timestamp.UTC().Format("2006-01-02")
		day, ok := daily[date]
		if !ok {
			day = &models.DailyCost{}
			daily[date] = day
			dailyPerModel[date] = make(map[string]float64)
		}
		day.TotalRequests++
		day.TotalTokens += int64(rec.TotalTokens)
		day.TotalCost += rec.TotalCost
		dailyPerModel[date][rec.Model] += rec.TotalCost
	}

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for lk, delta := range ledger {
			if err := upsertLedgerRow(tx, lk, delta); err != nil {
				return fmt.Errorf("ledger upsert %s/%s/%s: %w", lk.month, lk.scope, lk.key, err)
			}
		}
		for key, recs := range sessions {
			if err := refreshSessionRow(tx, key, recs); err != nil {
				return fmt.Errorf("session refresh %s: %w", key, err)
			}
		}
		for date, delta := range daily {
			if err := refreshDailyRow(tx, date, delta, dailyPerModel[date]); err != nil {
				return fmt.Errorf("daily rollup %s: %w", date, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.afterPersist(ctx, ledger)

	p.logger.Info("usage batch persisted",
		zap.Int("records", len(records)),
		zap.Int("ledger_rows", len(ledger)),
		zap.Int("sessions", len(sessions)))
	return nil
}

// afterPersist converges the shared spend counter and announces the batch.
// Both are advisory; the transaction above is the source of truth.
func (p *Processor) afterPersist(ctx context.Context, ledger map[ledgerKey]*models.MonthlyLedger) {
	for lk, delta := range ledger {
		if lk.scope != budget.ScopeTotal {
			continue
		}
		if p.cache != nil {
			if _, err := p.cache.IncrementSpent(ctx, lk.month, delta.TotalCost); err != nil {
				p.logger.Warn("shared spend counter not updated",
					zap.String("period", lk.month), zap.Error(err))
			}
		}
		if p.events != nil {
			if err := p.events.PublishSettlement(ctx, lk.month, int(delta.Requests), delta.TotalCost); err != nil {
				p.logger.Debug("settlement event not published", zap.Error(err))
			}
		}
	}
}

func upsertLedgerRow(tx *gorm.DB, lk ledgerKey, d *models.MonthlyLedger) error {
	row := models.MonthlyLedger{
		Month:              lk.month,
		Scope:              lk.scope,
		Key:                lk.key,
		Requests:           d.Requests,
		SuccessfulRequests: d.SuccessfulRequests,
		FailedRequests:     d.FailedRequests,
		TotalTokens:        d.TotalTokens,
		TotalCost:          d.TotalCost,
		FreeRequestsUsed:   d.FreeRequestsUsed,
		FreeTokensUsed:     d.FreeTokensUsed,
	}

	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "month"}, {Name: "scope"}, {Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"requests":            gorm.Expr("monthly_ledgers.requests + ?", d.Requests),
			"successful_requests": gorm.Expr("monthly_ledgers.successful_requests + ?", d.SuccessfulRequests),
			"failed_requests":     gorm.Expr("monthly_ledgers.failed_requests + ?", d.FailedRequests),
			"total_tokens":        gorm.Expr("monthly_ledgers.total_tokens + ?", d.TotalTokens),
			"total_cost":          gorm.Expr("monthly_ledgers.total_cost + ?", d.TotalCost),
			"free_requests_used":  gorm.Expr("monthly_ledgers.free_requests_used + ?", d.FreeRequestsUsed),
			"free_tokens_used":    gorm.Expr("monthly_ledgers.free_tokens_used + ?", d.FreeTokensUsed),
			"updated_at":          gorm.Expr("NOW()"),
		}),
	}).Create(&row).Error
}

// refreshSessionRow folds the session's records into its durable row. The
// row lock serializes against a concurrent close from the admin surface.
func refreshSessionRow(tx *gorm.DB, sessionKey string, recs []*usage.Record) error {
	var row models.UsageSession
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("session_key = ?", sessionKey).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = models.UsageSession{
			SessionKey: sessionKey,
			Status:     usage.StatusActive,
			StartedAt:  recs[0].Timestamp,
		}
	} else if err != nil {
		return err
	}

	breakdown := make(map[string]*usage.ModelUsage)
	if len(row.ModelBreakdown) > 0 {
		if err := json.Unmarshal(row.ModelBreakdown, &breakdown); err != nil {
			breakdown = make(map[string]*usage.ModelUsage)
		}
	}

	for _, rec := range recs {
		row.TotalRequests++
		if rec.Success {
			row.SuccessfulRequests++
		} else {
			row.FailedRequests++
		}
		row.TotalTokens += int64(rec.TotalTokens)
		row.TotalCost += rec.TotalCost

		mu, ok := breakdown[rec.Model]
		if !ok {
			mu = &usage.ModelUsage{}
			breakdown[rec.Model] = mu
		}
		mu.Requests++
		mu.Tokens += rec.TotalTokens
		mu.Cost += rec.TotalCost
		mu.TotalLatencyMS += rec.LatencyMS
		if !rec.Success {
			mu.Errors++
		}
	}

	data, err := json.Marshal(breakdown)
	if err != nil {
		return err
	}
	row.ModelBreakdown = datatypes.JSON(data)

	return tx.Save(&row).Error
}

func refreshDailyRow(tx *gorm.DB, date string, delta *models.DailyCost, perModel map[string]float64) error {
	var row models.DailyCost
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("date = ?", date).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = models.DailyCost{Date: date}
	} else if err != nil {
		return err
	}

	existing := make(map[string]float64)
	if len(row.PerModel) > 0 {
		if err := json.Unmarshal(row.PerModel, &existing); err != nil {
			existing = make(map[string]float64)
		}
	}
	for model, cost := range perModel {
		existing[model] += cost
	}

	row.TotalRequests += delta.TotalRequests
	row.TotalTokens += delta.TotalTokens
	row.TotalCost += delta.TotalCost

	data, err := json.Marshal(existing)
	if err != nil {
		return err
	}
	row.PerModel = datatypes.JSON(data)

	return tx.Save(&row).Error
}

func (p *Processor) requeueFailed(ctx context.Context, records []*usage.Record, cause error) {
	for _, rec := range records {
		deadLettered, err := p.queue.EnqueueFailed(ctx, rec, cause.Error())
		if err != nil {
			p.logger.Error("failed usage record not re-queued",
				zap.String("record_id", rec.ID), zap.Error(err))
			continue
		}
		if deadLettered && p.events != nil {
			_ = p.events.PublishDeadLetter(ctx, rec.ID, cause.Error())
		}
	}
}

// RunRollups refreshes the trace sink's daily cost table and applies any
// free-tier cycle resets that came due.
func (p *Processor) RunRollups(ctx context.Context) {
	if p.sink != nil {
		if err := p.sink.UpdateDailyCosts(ctx); err != nil {
			p.logger.Warn("daily cost table not refreshed", zap.Error(err))
		}
	}
	if err := p.ResetDueFreeTiers(ctx); err != nil {
		p.logger.Error("free-tier reset failed", zap.Error(err))
	}
}

// ResetDueFreeTiers zeroes persisted free-tier counters for every model
// whose reset day is today, so a ledger rebuilt from Postgres does not
// re-import quota consumed in the previous cycle. The in-memory ledger
// rolls its own state; this keeps the durable side in step. A marker lock
// makes the reset once-per-model-per-day across instances.
func (p *Processor) ResetDueFreeTiers(ctx context.Context) error {
	if p.pricing == nil {
		return nil
	}

	now := p.nowFn().In(p.loc)
	date := now.Format("2006-01-02")

	var lastErr error
	for modelID := range p.pricing.ListModels() {
		row := p.pricing.GetPricing(modelID)
		if row == nil || row.FreeTier == nil {
			continue
		}

		resetDay := row.FreeTier.ResetDay
		if resetDay < 1 {
			resetDay = 1
		}
		if now.Day() != resetDay {
			continue
		}

		if p.locks != nil {
			marker := fmt.Sprintf("freetier_reset:%s:%s", modelID, date)
			if _, err := p.locks.Acquire(ctx, marker, 48*time.Hour); err != nil {
				continue
			}
		}

		period := budget.PeriodKey(now, p.resetDay, p.loc)
		err := p.db.WithContext(ctx).
			Model(&models.MonthlyLedger{}).
			Where("month = ? AND scope = ? AND key = ?", period, budget.ScopeModel, modelID).
			Updates(map[string]interface{}{
				"free_requests_used": 0,
				"free_tokens_used":   0,
			}).Error
		if err != nil {
			p.logger.Error("free-tier counters not reset",
				zap.String("model", modelID), zap.Error(err))
			lastErr = err
			continue
		}

		p.logger.Info("free-tier cycle reset",
			zap.String("model", modelID), zap.String("date", date))
		if p.events != nil {
			_ = p.events.PublishFreeTierReset(ctx, modelID, date)
		}
	}
	return lastErr
}

// Stats is the worker's health view.
type Stats struct {
	Queue     usage.Stats   `json:"queue"`
	BatchSize int           `json:"batch_size"`
	Interval  time.Duration `json:"interval"`
	Running   bool          `json:"running"`
}

func (p *Processor) Stats(ctx context.Context) (*Stats, error) {
	qs, err := p.queue.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Queue:     *qs,
		BatchSize: p.batchSize,
		Interval:  p.interval,
		Running:   p.running(),
	}, nil
}

func (p *Processor) running() bool {
	select {
	case <-p.stopCh:
		return false
	default:
		return true
	}
}
