package domain

import "time"

// TaskType classifies what a request wants from the fleet. "auto" (or empty)
// lets classification derive the type from analysis.
type TaskType string

const (
	TaskAuto             TaskType = "auto"
	TaskCritical         TaskType = "critical"
	TaskPremium          TaskType = "premium"
	TaskComplexAnalysis  TaskType = "complex_analysis"
	TaskCoding           TaskType = "coding"
	TaskGeneral          TaskType = "general"
	TaskRAGSearch        TaskType = "rag_search"
	TaskFileSearch       TaskType = "file_search"
	TaskCodeInterpreter  TaskType = "code_interpreter"
	TaskGeneralAssistant TaskType = "general_assistant"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskAuto, TaskCritical, TaskPremium, TaskComplexAnalysis, TaskCoding,
		TaskGeneral, TaskRAGSearch, TaskFileSearch, TaskCodeInterpreter, TaskGeneralAssistant:
		return true
	}
	return false
}

// ParseTaskType validates a caller-supplied task type. Empty maps to auto.
func ParseTaskType(s string) (TaskType, error) {
	if s == "" {
		return TaskAuto, nil
	}
	t := TaskType(s)
	if !t.Valid() {
		return TaskAuto, Errorf(CodeInvalidTaskType, "unknown task type %q", s)
	}
	return t, nil
}

// Request is the inbound unit of work.
type Request struct {
	Prompt         string               `json:"prompt"`
	TaskType       TaskType             `json:"task_type,omitempty"`
	PreferredTier  *int                 `json:"preferred_tier,omitempty"`
	ConversationID string               `json:"conversation_id,omitempty"`
	SessionID      string               `json:"session_id,omitempty"`
	UserMetadata   map[string]string    `json:"user_metadata,omitempty"`
	Context        *ConversationContext `json:"context,omitempty"`
}

// ConversationTurn summarizes one earlier exchange of a conversation.
type ConversationTurn struct {
	Prompt     string     `json:"prompt"`
	Response   string     `json:"response"`
	ModelUsed  string     `json:"model_used"`
	Complexity Complexity `json:"complexity"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ConversationContext carries the multi-turn signal the analyzer consumes.
type ConversationContext struct {
	PreviousResponses      []ConversationTurn `json:"previous_responses,omitempty"`
	TurnCount              int                `json:"turn_count"`
	CurrentComplexityLevel Complexity         `json:"current_complexity_level,omitempty"`
}
