package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/models"
)

// SessionStore persists coding session snapshots to Postgres. The request
// orchestrator seeds a row when a session starts and upserts the terminal
// state when it finishes, so the status endpoint and the admin CLI can see
// sessions that outlive the process.
type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

// planSummary is the decomposition metadata kept outside the subtask list.
type planSummary struct {
	TotalEstimatedLOC int    `json:"total_estimated_loc"`
	SuggestedApproach string `json:"suggested_approach,omitempty"`
}

// Save upserts the snapshot keyed by session id. Later saves for the same id
// replace the whole snapshot.
func (s *SessionStore) Save(ctx context.Context, session *domain.CodingSession) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session has no id")
	}

	row, err := sessionRow(session)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "target_language", "error_message", "completed_at",
			"decomposition", "subtasks", "final_review", "external_dependencies",
			"progress_completed", "progress_in_progress", "progress_failed", "progress_total",
			"total_time_ms", "low_tier_usage_count", "high_tier_usage_count",
			"total_cost", "quality_score", "updated_at",
		}),
	}).Create(&row).Error
}

// Load rebuilds a session from its persisted snapshot. Unknown ids surface
// gorm.ErrRecordNotFound.
func (s *SessionStore) Load(ctx context.Context, id string) (*domain.CodingSession, error) {
	var row models.CodingSession
	if err := s.db.WithContext(ctx).Where("session_key = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return sessionFromRow(row)
}

// List returns recent sessions, newest first. An empty status matches all.
func (s *SessionStore) List(ctx context.Context, status string, limit int) ([]models.CodingSession, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var rows []models.CodingSession
	err := q.Find(&rows).Error
	return rows, err
}

func sessionRow(session *domain.CodingSession) (models.CodingSession, error) {
	row := models.CodingSession{
		SessionKey:      session.ID,
		Status:          string(session.Status),
		OriginalRequest: session.OriginalPrompt,
		TargetLanguage:  session.TargetLanguage,
		ErrorMessage:    session.Error,
		StartedAt:       session.CreatedAt,

		ProgressCompleted:  session.Progress.Completed,
		ProgressInProgress: session.Progress.InProgress,
		ProgressFailed:     session.Progress.Failed,
		ProgressTotal:      session.Progress.Total,

		TotalTimeMS:        session.Metrics.TotalTimeMS,
		LowTierUsageCount:  session.Metrics.LowTierUsageCount,
		HighTierUsageCount: session.Metrics.HighTierUsageCount,
		TotalCost:          session.Metrics.TotalCost,
		QualityScore:       session.Metrics.QualityScore,
	}

	if session.Status == domain.CodingCompleted || session.Status == domain.CodingFailed {
		completed := session.UpdatedAt
		row.CompletedAt = &completed
	}

	if session.Plan != nil {
		summary, err := json.Marshal(planSummary{
			TotalEstimatedLOC: session.Plan.TotalEstimatedLOC,
			SuggestedApproach: session.Plan.SuggestedApproach,
		})
		if err != nil {
			return row, fmt.Errorf("failed to marshal decomposition: %w", err)
		}
		row.Decomposition = datatypes.JSON(summary)

		subtasks, err := json.Marshal(session.Plan.Subtasks)
		if err != nil {
			return row, fmt.Errorf("failed to marshal subtasks: %w", err)
		}
		row.Subtasks = datatypes.JSON(subtasks)
		row.ExternalDependencies = pq.StringArray(session.Plan.ExternalDependencies)
	}

	if session.FinalReview != nil {
		review, err := json.Marshal(session.FinalReview)
		if err != nil {
			return row, fmt.Errorf("failed to marshal final review: %w", err)
		}
		row.FinalReview = datatypes.JSON(review)
	}
	return row, nil
}

func sessionFromRow(row models.CodingSession) (*domain.CodingSession, error) {
	session := &domain.CodingSession{
		ID:             row.SessionKey,
		OriginalPrompt: row.OriginalRequest,
		TargetLanguage: row.TargetLanguage,
		Status:         domain.CodingStatus(row.Status),
		Error:          row.ErrorMessage,
		CreatedAt:      row.StartedAt,
		UpdatedAt:      row.UpdatedAt,
		Progress: domain.SessionProgress{
			Completed:  row.ProgressCompleted,
			InProgress: row.ProgressInProgress,
			Failed:     row.ProgressFailed,
			Total:      row.ProgressTotal,
		},
		Metrics: domain.SessionMetrics{
			TotalTimeMS:        row.TotalTimeMS,
			LowTierUsageCount:  row.LowTierUsageCount,
			HighTierUsageCount: row.HighTierUsageCount,
			TotalCost:          row.TotalCost,
			QualityScore:       row.QualityScore,
		},
	}
	if row.CompletedAt != nil {
		session.UpdatedAt = *row.CompletedAt
	}

	if len(row.Subtasks) > 0 || len(row.Decomposition) > 0 {
		plan := &domain.DecompositionResult{
			ExternalDependencies: []string(row.ExternalDependencies),
		}
		if len(row.Decomposition) > 0 {
			var summary planSummary
			if err := json.Unmarshal(row.Decomposition, &summary); err != nil {
				return nil, fmt.Errorf("corrupt decomposition for session %s: %w", row.SessionKey, err)
			}
			plan.TotalEstimatedLOC = summary.TotalEstimatedLOC
			plan.SuggestedApproach = summary.SuggestedApproach
		}
		if len(row.Subtasks) > 0 {
			if err := json.Unmarshal(row.Subtasks, &plan.Subtasks); err != nil {
				return nil, fmt.Errorf("corrupt subtasks for session %s: %w", row.SessionKey, err)
			}
		}
		session.Plan = plan
	}

	if len(row.FinalReview) > 0 {
		var review domain.QualityReview
		if err := json.Unmarshal(row.FinalReview, &review); err != nil {
			return nil, fmt.Errorf("corrupt final review for session %s: %w", row.SessionKey, err)
		}
		session.FinalReview = &review
	}
	return session, nil
}

// PendingSession is the initial planning-state snapshot for a session that
// is about to run, so status polls between start and completion resolve.
func PendingSession(id, prompt string, startedAt time.Time) *domain.CodingSession {
	return &domain.CodingSession{
		ID:             id,
		OriginalPrompt: prompt,
		Status:         domain.CodingPlanning,
		CreatedAt:      startedAt,
		UpdatedAt:      startedAt,
	}
}
