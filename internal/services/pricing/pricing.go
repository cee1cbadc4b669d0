package pricing

import "time"

// Pricing is one model's price row. All token prices are USD per 1K tokens.
// Optional buckets left at zero are not billed.
type Pricing struct {
	InputPer1K     float64   `json:"input_per_1k"`
	OutputPer1K    float64   `json:"output_per_1k"`
	CachedPer1K    float64   `json:"cached_per_1k,omitempty"`
	ReasoningPer1K float64   `json:"reasoning_per_1k,omitempty"`
	MinimumCharge  float64   `json:"minimum_charge,omitempty"`
	FreeTier       *FreeTier `json:"free_tier,omitempty"`

	Source      string    `json:"source,omitempty"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}

// FreeTier is a provider-granted monthly quota consumed before any charge.
type FreeTier struct {
	RequestsPerMonth int `json:"requests_per_month,omitempty"`
	TokensPerMonth   int `json:"tokens_per_month,omitempty"`
	ResetDay         int `json:"reset_day"`
}

// Pricing sources in ascending precedence.
const (
	SourceDefault        = "default"
	SourceConfigOverride = "config_override"
	SourceDBOverride     = "database_override"
)

func (p *Pricing) clone() *Pricing {
	cp := *p
	if p.FreeTier != nil {
		ft := *p.FreeTier
		cp.FreeTier = &ft
	}
	return &cp
}
