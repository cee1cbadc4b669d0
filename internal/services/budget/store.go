package budget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/models"
)

// Ledger row scopes.
const (
	ScopeTotal = "total"
	ScopeModel = "model"
	ScopeTier  = "tier"
)

// GormAlertStore persists alerts to Postgres.
type GormAlertStore struct {
	db *gorm.DB
}

func NewGormAlertStore(db *gorm.DB) *GormAlertStore {
	return &GormAlertStore{db: db}
}

func (s *GormAlertStore) Append(ctx context.Context, kind, message string, alertCtx map[string]interface{}) error {
	row := models.Alert{Kind: kind, Message: message}
	if alertCtx != nil {
		data, err := json.Marshal(alertCtx)
		if err != nil {
			return fmt.Errorf("failed to marshal alert context: %w", err)
		}
		row.Context = datatypes.JSON(data)
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// List returns the newest alerts first.
func (s *GormAlertStore) List(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.Alert
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Acknowledge stamps who acknowledged an alert. Acknowledging twice keeps
// the first stamp.
func (s *GormAlertStore) Acknowledge(ctx context.Context, id, by string) error {
	result := s.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where("id = ? AND acknowledged_at IS NULL", id).
		Updates(map[string]interface{}{
			"acknowledged_by": by,
			"acknowledged_at": gorm.Expr("NOW()"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SettingsStore persists the budget contract. The config file seeds the row
// on first boot; afterwards the row wins.
type SettingsStore struct {
	db *gorm.DB
}

func NewSettingsStore(db *gorm.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) LoadOrSeed(ctx context.Context, seed config.BudgetConfig) (config.BudgetConfig, error) {
	var row models.BudgetSettings
	err := s.db.WithContext(ctx).Where("name = ?", "default").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = settingsRow(seed)
		if createErr := s.db.WithContext(ctx).Create(&row).Error; createErr != nil {
			return seed, fmt.Errorf("failed to seed budget settings: %w", createErr)
		}
		return seed, nil
	}
	if err != nil {
		return seed, fmt.Errorf("failed to load budget settings: %w", err)
	}
	return settingsConfig(row), nil
}

func (s *SettingsStore) Save(ctx context.Context, cfg config.BudgetConfig) error {
	row := settingsRow(cfg)
	return s.db.WithContext(ctx).
		Model(&models.BudgetSettings{}).
		Where("name = ?", "default").
		Updates(map[string]interface{}{
			"monthly_budget":      row.MonthlyBudget,
			"warning_threshold":   row.WarningThreshold,
			"critical_threshold":  row.CriticalThreshold,
			"auto_pause_at_limit": row.AutoPauseAtLimit,
			"max_request_cost":    row.MaxRequestCost,
			"max_session_cost":    row.MaxSessionCost,
			"budget_reset_day":    row.BudgetResetDay,
			"timezone":            row.Timezone,
			"tier_allocation":     row.TierAllocation,
		}).Error
}

func settingsRow(cfg config.BudgetConfig) models.BudgetSettings {
	row := models.BudgetSettings{
		Name:              "default",
		MonthlyBudget:     cfg.MonthlyBudget,
		WarningThreshold:  cfg.WarningThreshold,
		CriticalThreshold: cfg.CriticalThreshold,
		AutoPauseAtLimit:  cfg.AutoPauseAtLimit,
		MaxRequestCost:    cfg.MaxRequestCost,
		MaxSessionCost:    cfg.MaxSessionCost,
		BudgetResetDay:    cfg.BudgetResetDay,
		Timezone:          cfg.Timezone,
	}
	if len(cfg.TierAllocation) > 0 {
		if data, err := json.Marshal(cfg.TierAllocation); err == nil {
			row.TierAllocation = datatypes.JSON(data)
		}
	}
	return row
}

func settingsConfig(row models.BudgetSettings) config.BudgetConfig {
	cfg := config.BudgetConfig{
		MonthlyBudget:     row.MonthlyBudget,
		WarningThreshold:  row.WarningThreshold,
		CriticalThreshold: row.CriticalThreshold,
		AutoPauseAtLimit:  row.AutoPauseAtLimit,
		MaxRequestCost:    row.MaxRequestCost,
		MaxSessionCost:    row.MaxSessionCost,
		BudgetResetDay:    row.BudgetResetDay,
		Timezone:          row.Timezone,
	}
	if len(row.TierAllocation) > 0 {
		_ = json.Unmarshal(row.TierAllocation, &cfg.TierAllocation)
	}
	return cfg
}

// GormReconciler rebuilds the in-memory ledger from persisted monthly rows.
type GormReconciler struct {
	db *gorm.DB
}

func NewGormReconciler(db *gorm.DB) *GormReconciler {
	return &GormReconciler{db: db}
}

func (r *GormReconciler) CurrentPeriodTotals(ctx context.Context, period string) (float64, int64, map[string]float64, map[int]float64, map[string]*FreeTierState, error) {
	var rows []models.MonthlyLedger
	if err := r.db.WithContext(ctx).Where("month = ?", period).Find(&rows).Error; err != nil {
		return 0, 0, nil, nil, nil, fmt.Errorf("failed to load ledger rows: %w", err)
	}

	var spent float64
	var requests int64
	perModel := make(map[string]float64)
	perTier := make(map[int]float64)
	freeTier := make(map[string]*FreeTierState)

	for _, row := range rows {
		switch row.Scope {
		case ScopeTotal:
			spent = row.TotalCost
			requests = row.Requests
		case ScopeModel:
			perModel[row.Key] = row.TotalCost
			if row.FreeRequestsUsed > 0 || row.FreeTokensUsed > 0 {
				freeTier[row.Key] = &FreeTierState{
					Period:       period,
					RequestsUsed: int(row.FreeRequestsUsed),
					TokensUsed:   int(row.FreeTokensUsed),
				}
			}
		case ScopeTier:
			tier, err := strconv.Atoi(row.Key)
			if err != nil {
				continue
			}
			perTier[tier] = row.TotalCost
		}
	}

	return spent, requests, perModel, perTier, freeTier, nil
}
