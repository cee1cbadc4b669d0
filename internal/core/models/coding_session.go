package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// CodingSession is the durable snapshot of a collaborative coding run:
// the decomposition, final subtask states, and roll-up metrics.
type CodingSession struct {
	BaseModel
	SessionKey      string     `gorm:"uniqueIndex;not null" json:"session_key"`
	Status          string     `gorm:"index" json:"status"`
	OriginalRequest string     `json:"original_request"`
	TargetLanguage  string     `json:"target_language,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`

	Decomposition datatypes.JSON `json:"decomposition,omitempty"`
	Subtasks      datatypes.JSON `json:"subtasks,omitempty"`
	FinalReview   datatypes.JSON `json:"final_review,omitempty"`

	ExternalDependencies pq.StringArray `gorm:"type:text[]" json:"external_dependencies,omitempty"`

	ProgressCompleted  int `json:"progress_completed"`
	ProgressInProgress int `json:"progress_in_progress"`
	ProgressFailed     int `json:"progress_failed"`
	ProgressTotal      int `json:"progress_total"`

	TotalTimeMS        int64   `json:"total_time_ms"`
	LowTierUsageCount  int     `json:"low_tier_usage_count"`
	HighTierUsageCount int     `json:"high_tier_usage_count"`
	TotalCost          float64 `json:"total_cost"`
	QualityScore       float64 `json:"quality_score"`
}
