package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BaseModel struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// All enumerates every persisted entity for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&UsageSession{},
		&MonthlyLedger{},
		&Alert{},
		&BudgetSettings{},
		&ModelPricing{},
		&CodingSession{},
		&DailyCost{},
	}
}
