package domain

import "time"

// TokenUsage counts tokens per billing bucket. Total is authoritative and
// includes every bucket, so Total >= Input+Output always holds.
type TokenUsage struct {
	Input     int `json:"input"`
	Output    int `json:"output"`
	Cached    int `json:"cached,omitempty"`
	Reasoning int `json:"reasoning,omitempty"`
	Total     int `json:"total"`
}

func NewTokenUsage(input, output int) TokenUsage {
	return TokenUsage{Input: input, Output: output, Total: input + output}
}

// WithBuckets returns a copy with the optional buckets set and the total
// recomputed across all four.
func (t TokenUsage) WithBuckets(cached, reasoning int) TokenUsage {
	t.Cached = cached
	t.Reasoning = reasoning
	t.Total = t.Input + t.Output + cached + reasoning
	return t
}

func (t TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		Input:     t.Input + other.Input,
		Output:    t.Output + other.Output,
		Cached:    t.Cached + other.Cached,
		Reasoning: t.Reasoning + other.Reasoning,
		Total:     t.Total + other.Total,
	}
}

// CostBreakdown is the priced view of a TokenUsage. Currency is fixed to USD
// at this layer.
type CostBreakdown struct {
	InputCost     float64   `json:"input_cost"`
	OutputCost    float64   `json:"output_cost"`
	CachedCost    float64   `json:"cached_cost,omitempty"`
	ReasoningCost float64   `json:"reasoning_cost,omitempty"`
	TotalCost     float64   `json:"total_cost"`
	Currency      string    `json:"currency"`
	CalculatedAt  time.Time `json:"calculated_at"`
}

func ZeroCost() CostBreakdown {
	return CostBreakdown{Currency: "USD", CalculatedAt: time.Now()}
}

func (c CostBreakdown) Add(other CostBreakdown) CostBreakdown {
	return CostBreakdown{
		InputCost:     c.InputCost + other.InputCost,
		OutputCost:    c.OutputCost + other.OutputCost,
		CachedCost:    c.CachedCost + other.CachedCost,
		ReasoningCost: c.ReasoningCost + other.ReasoningCost,
		TotalCost:     c.TotalCost + other.TotalCost,
		Currency:      "USD",
		CalculatedAt:  time.Now(),
	}
}
