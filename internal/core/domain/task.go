package domain

import "time"

// Difficulty labels a subtask for tier selection. Easy subtasks run on the
// cheapest coding-capable tier, hard ones go straight to a reviewer-class
// model.
type Difficulty string

const (
	DifficultyEasy Difficulty = "easy"
	DifficultyHard Difficulty = "hard"
)

type SubtaskStatus string

const (
	SubtaskPending    SubtaskStatus = "pending"
	SubtaskInProgress SubtaskStatus = "in_progress"
	SubtaskReview     SubtaskStatus = "review"
	SubtaskDone       SubtaskStatus = "done"
	SubtaskRetry      SubtaskStatus = "retry"
	SubtaskFailed     SubtaskStatus = "failed"
)

// SubtaskResult carries the generated artifact for one subtask.
type SubtaskResult struct {
	Code        string            `json:"code"`
	Explanation string            `json:"explanation,omitempty"`
	ModelID     string            `json:"model_id"`
	Tier        int               `json:"tier"`
	Usage       TokenUsage        `json:"usage"`
	Cost        CostBreakdown     `json:"cost"`
	LatencyMS   int64             `json:"latency_ms"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Subtask is one unit of a decomposed coding request. Dependencies reference
// other subtask IDs and must stay acyclic.
type Subtask struct {
	ID           string         `json:"id"`
	Description  string         `json:"description"`
	Category     string         `json:"category,omitempty"`
	Difficulty   Difficulty     `json:"difficulty"`
	Status       SubtaskStatus  `json:"status"`
	RetryCount   int            `json:"retry_count"`
	EstimatedLOC int            `json:"estimated_loc"`
	Language     string         `json:"language"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Result       *SubtaskResult `json:"result,omitempty"`
	Feedback     []string       `json:"feedback,omitempty"`
}

// Terminal reports whether the subtask needs no further work.
func (s *Subtask) Terminal() bool {
	return s.Status == SubtaskDone || s.Status == SubtaskFailed
}

// DependsOn reports whether id appears in the dependency list.
func (s *Subtask) DependsOn(id string) bool {
	for _, d := range s.Dependencies {
		if d == id {
			return true
		}
	}
	return false
}

// DecompositionRequest is the decomposer input.
type DecompositionRequest struct {
	OriginalPrompt       string            `json:"original_prompt"`
	TargetLanguage       string            `json:"target_language,omitempty"`
	ComplexityPreference string            `json:"complexity_preference,omitempty"`
	MaxSubtasks          int               `json:"max_subtasks"`
	Context              map[string]string `json:"context,omitempty"`
}

// DecompositionResult is the execution plan produced by the decomposer.
type DecompositionResult struct {
	Subtasks             []Subtask `json:"subtasks"`
	TotalEstimatedLOC    int       `json:"total_estimated_loc"`
	SuggestedApproach    string    `json:"suggested_approach,omitempty"`
	ExternalDependencies []string  `json:"external_dependencies,omitempty"`
}

func (d *DecompositionResult) Subtask(id string) *Subtask {
	for i := range d.Subtasks {
		if d.Subtasks[i].ID == id {
			return &d.Subtasks[i]
		}
	}
	return nil
}

type IssueSeverity string

const (
	SeverityLow      IssueSeverity = "low"
	SeverityMedium   IssueSeverity = "medium"
	SeverityHigh     IssueSeverity = "high"
	SeverityCritical IssueSeverity = "critical"
)

// Rank orders severities low=0 .. critical=3.
func (s IssueSeverity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return 0
}

type IssueCategory string

const (
	IssueSyntax          IssueCategory = "syntax"
	IssueLogic           IssueCategory = "logic"
	IssuePerformance     IssueCategory = "performance"
	IssueSecurity        IssueCategory = "security"
	IssueStyle           IssueCategory = "style"
	IssueMaintainability IssueCategory = "maintainability"
)

// QualityIssue is one finding from a quality review.
type QualityIssue struct {
	Severity   IssueSeverity `json:"severity"`
	Category   IssueCategory `json:"category"`
	Message    string        `json:"message"`
	Line       int           `json:"line,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
}

// QualityReview is the gate verdict for a single subtask result. Score is
// 0..100. RequiresRevision forces a rewrite cycle even when Score alone
// would pass.
type QualityReview struct {
	Score            float64            `json:"score"`
	Passed           bool               `json:"passed"`
	RequiresRevision bool               `json:"requires_revision"`
	Issues           []QualityIssue     `json:"issues,omitempty"`
	Comments         []string           `json:"comments,omitempty"`
	CheckScores      map[string]float64 `json:"check_scores,omitempty"`
	ReviewerModelID  string             `json:"reviewer_model_id,omitempty"`
}

// CriticalCount counts issues at or above the given severity.
func (r *QualityReview) CountAtOrAbove(min IssueSeverity) int {
	n := 0
	for _, is := range r.Issues {
		if is.Severity.Rank() >= min.Rank() {
			n++
		}
	}
	return n
}

func (r *QualityReview) HasCritical() bool {
	return r.CountAtOrAbove(SeverityCritical) > 0
}

type CodingStatus string

const (
	CodingPlanning  CodingStatus = "planning"
	CodingExecuting CodingStatus = "executing"
	CodingReviewing CodingStatus = "reviewing"
	CodingCompleted CodingStatus = "completed"
	CodingFailed    CodingStatus = "failed"
)

// SessionProgress is the rolled-up subtask state of a coding session.
type SessionProgress struct {
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// SessionMetrics accumulates execution cost and tier usage for a coding
// session. QualityScore is the mean of the final per-subtask review scores.
type SessionMetrics struct {
	TotalTimeMS        int64   `json:"total_time_ms"`
	LowTierUsageCount  int     `json:"low_tier_usage_count"`
	HighTierUsageCount int     `json:"high_tier_usage_count"`
	TotalCost          float64 `json:"total_cost"`
	QualityScore       float64 `json:"quality_score"`
}

// CodingSession is the live state of one collaborative coding run.
type CodingSession struct {
	ID             string               `json:"id"`
	OriginalPrompt string               `json:"original_prompt"`
	TargetLanguage string               `json:"target_language,omitempty"`
	Status         CodingStatus         `json:"status"`
	Plan           *DecompositionResult `json:"plan,omitempty"`
	Progress       SessionProgress      `json:"progress"`
	Metrics        SessionMetrics       `json:"metrics"`
	FinalReview    *QualityReview       `json:"final_review,omitempty"`
	Error          string               `json:"error,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// RefreshProgress recomputes Progress from the plan's subtask statuses.
func (cs *CodingSession) RefreshProgress() {
	p := SessionProgress{}
	if cs.Plan != nil {
		p.Total = len(cs.Plan.Subtasks)
		for i := range cs.Plan.Subtasks {
			switch cs.Plan.Subtasks[i].Status {
			case SubtaskDone:
				p.Completed++
			case SubtaskFailed:
				p.Failed++
			case SubtaskInProgress, SubtaskReview, SubtaskRetry:
				p.InProgress++
			}
		}
	}
	cs.Progress = p
}
