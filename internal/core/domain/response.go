package domain

// Response is the outbound unit of work. Failures still carry a valid
// zero-token usage, a zero cost breakdown, and the measured latency so
// downstream accounting stays uniform.
type Response struct {
	Success       bool          `json:"success"`
	ModelUsed     string        `json:"model_used"`
	TierUsed      int           `json:"tier_used"`
	Text          string        `json:"text"`
	TokenUsage    TokenUsage    `json:"token_usage"`
	Cost          CostBreakdown `json:"cost"`
	LatencyMS     int64         `json:"latency_ms"`
	FallbackUsed  bool          `json:"fallback_used"`
	TierEscalated bool          `json:"tier_escalated"`
	Error         *Error        `json:"error,omitempty"`
}

func ErrorResponse(err *Error, latencyMS int64) Response {
	return Response{
		Success:    false,
		TokenUsage: TokenUsage{},
		Cost:       ZeroCost(),
		LatencyMS:  latencyMS,
		Error:      err,
	}
}
