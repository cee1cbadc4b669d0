package domain

// ProviderName identifies a backend vendor family.
type ProviderName string

const (
	ProviderAlibaba    ProviderName = "alibaba"
	ProviderGoogle     ProviderName = "google"
	ProviderAnthropic  ProviderName = "anthropic"
	ProviderOpenAI     ProviderName = "openai"
	ProviderOpenRouter ProviderName = "openrouter"
)

func (p ProviderName) Valid() bool {
	switch p {
	case ProviderAlibaba, ProviderGoogle, ProviderAnthropic, ProviderOpenAI, ProviderOpenRouter:
		return true
	}
	return false
}

// Tier bounds. Tiers bucket models by quality and cost, cheapest first.
const (
	MinTier = 0
	MaxTier = 4
)

func ValidTier(tier int) bool {
	return tier >= MinTier && tier <= MaxTier
}

// Model is a routable backend model. Instances are immutable once the
// registry hands them out.
type Model struct {
	ID               string       `json:"id"`
	Provider         ProviderName `json:"provider"`
	Tier             int          `json:"tier"`
	Capabilities     []string     `json:"capabilities"`
	PriorityKeywords []string     `json:"priority_keywords,omitempty"`
	LatencyHintMS    int          `json:"latency_hint_ms"`
	MaxTokens        int          `json:"max_tokens"`
}

func (m *Model) HasCapability(capability string) bool {
	for _, c := range m.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

func (m *Model) HasAnyKeyword(words []string) bool {
	for _, kw := range m.PriorityKeywords {
		for _, w := range words {
			if kw == w {
				return true
			}
		}
	}
	return false
}
