package models

import (
	"time"

	"gorm.io/datatypes"
)

// UsageSession is the durable record of one tracked session: request and
// token totals plus the per-model breakdown snapshot.
type UsageSession struct {
	BaseModel
	SessionKey  string     `gorm:"uniqueIndex;not null" json:"session_key"`
	Status      string     `gorm:"index;default:active" json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	TotalRequests      int64 `json:"total_requests"`
	SuccessfulRequests int64 `json:"successful_requests"`
	FailedRequests     int64 `json:"failed_requests"`

	TotalTokens int64   `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`

	// ModelBreakdown maps model id to per-model counters.
	ModelBreakdown datatypes.JSON `json:"model_breakdown,omitempty"`
	UserMetadata   datatypes.JSON `json:"user_metadata,omitempty"`
}

// MonthlyLedger is one accumulator row of the budget ledger. Scope is either
// "model" or "tier"; Key holds the model id or the tier digit. Rows are
// upserted with additive increments so concurrent writers stay correct.
type MonthlyLedger struct {
	BaseModel
	Month string `gorm:"index:idx_ledger_unique,unique;not null" json:"month"`
	Scope string `gorm:"index:idx_ledger_unique,unique;not null" json:"scope"`
	Key   string `gorm:"index:idx_ledger_unique,unique;not null" json:"key"`

	Requests           int64   `json:"requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	FailedRequests     int64   `json:"failed_requests"`
	TotalTokens        int64   `json:"total_tokens"`
	TotalCost          float64 `json:"total_cost"`

	// Free-tier consumption for the month, model scope only.
	FreeRequestsUsed int64 `json:"free_requests_used"`
	FreeTokensUsed   int64 `json:"free_tokens_used"`
}

// DailyCost is the per-day rollup written by the reconciliation worker.
type DailyCost struct {
	BaseModel
	Date          string         `gorm:"uniqueIndex;not null" json:"date"`
	TotalRequests int64          `json:"total_requests"`
	TotalTokens   int64          `json:"total_tokens"`
	TotalCost     float64        `json:"total_cost"`
	PerModel      datatypes.JSON `json:"per_model,omitempty"`
}
