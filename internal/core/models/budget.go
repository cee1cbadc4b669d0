package models

import (
	"time"

	"gorm.io/datatypes"
)

// Alert rows are append-only; acknowledgement only sets the two fields.
type Alert struct {
	BaseModel
	Kind           string         `gorm:"index;not null" json:"kind"`
	Message        string         `json:"message"`
	Context        datatypes.JSON `json:"context,omitempty"`
	AcknowledgedBy *string        `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
}

const (
	AlertKindWarning     = "warning"
	AlertKindCritical    = "critical"
	AlertKindCapExceeded = "cap-exceeded"
)

// BudgetSettings is the persisted budget contract. A single row keyed by
// Name "default" backs the admin read/update surface; the config file seeds
// it on first boot.
type BudgetSettings struct {
	BaseModel
	Name              string         `gorm:"uniqueIndex;not null;default:default" json:"name"`
	MonthlyBudget     float64        `json:"monthly_budget"`
	WarningThreshold  float64        `json:"warning_threshold"`
	CriticalThreshold float64        `json:"critical_threshold"`
	AutoPauseAtLimit  bool           `json:"auto_pause_at_limit"`
	MaxRequestCost    float64        `json:"max_request_cost"`
	MaxSessionCost    float64        `json:"max_session_cost"`
	BudgetResetDay    int            `json:"budget_reset_day"`
	Timezone          string         `json:"timezone"`
	TierAllocation    datatypes.JSON `json:"tier_allocation,omitempty"`
}

// ModelPricing is a persisted pricing override row. Prices are per 1K
// tokens; zero-valued optional buckets mean "not billed".
type ModelPricing struct {
	BaseModel
	ModelID        string  `gorm:"uniqueIndex;not null" json:"model_id"`
	InputPer1K     float64 `gorm:"column:input_per_1k" json:"input_per_1k"`
	OutputPer1K    float64 `gorm:"column:output_per_1k" json:"output_per_1k"`
	CachedPer1K    float64 `gorm:"column:cached_per_1k" json:"cached_per_1k"`
	ReasoningPer1K float64 `gorm:"column:reasoning_per_1k" json:"reasoning_per_1k"`
	MinimumCharge  float64 `json:"minimum_charge"`

	FreeRequestsPerMonth int `json:"free_requests_per_month"`
	FreeTokensPerMonth   int `json:"free_tokens_per_month"`
	FreeTierResetDay     int `json:"free_tier_reset_day"`
}
