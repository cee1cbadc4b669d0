package pricing

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/models"
)

// GormRepository stores pricing overrides in Postgres.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) List(ctx context.Context) (map[string]*Pricing, error) {
	var rows []models.ModelPricing
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[string]*Pricing, len(rows))
	for _, row := range rows {
		p := &Pricing{
			InputPer1K:     row.InputPer1K,
			OutputPer1K:    row.OutputPer1K,
			CachedPer1K:    row.CachedPer1K,
			ReasoningPer1K: row.ReasoningPer1K,
			MinimumCharge:  row.MinimumCharge,
			LastUpdated:    row.UpdatedAt,
		}
		if row.FreeRequestsPerMonth > 0 || row.FreeTokensPerMonth > 0 {
			p.FreeTier = &FreeTier{
				RequestsPerMonth: row.FreeRequestsPerMonth,
				TokensPerMonth:   row.FreeTokensPerMonth,
				ResetDay:         row.FreeTierResetDay,
			}
		}
		out[row.ModelID] = p
	}
	return out, nil
}

func (r *GormRepository) Upsert(ctx context.Context, modelID string, p *Pricing) error {
	row := models.ModelPricing{
		ModelID:        modelID,
		InputPer1K:     p.InputPer1K,
		OutputPer1K:    p.OutputPer1K,
		CachedPer1K:    p.CachedPer1K,
		ReasoningPer1K: p.ReasoningPer1K,
		MinimumCharge:  p.MinimumCharge,
	}
	if p.FreeTier != nil {
		row.FreeRequestsPerMonth = p.FreeTier.RequestsPerMonth
		row.FreeTokensPerMonth = p.FreeTier.TokensPerMonth
		row.FreeTierResetDay = p.FreeTier.ResetDay
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "model_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"input_per_1k", "output_per_1k", "cached_per_1k", "reasoning_per_1k",
			"minimum_charge", "free_requests_per_month", "free_tokens_per_month",
			"free_tier_reset_day", "updated_at",
		}),
	}).Create(&row).Error
}
