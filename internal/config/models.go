package config

// DefaultModels is the built-in five-tier catalog used when the config file
// does not declare its own. Prices are per 1K tokens and live in the pricing
// table defaults; entries here may override them.
func DefaultModels() []ModelConfig {
	return []ModelConfig{
		// Tier 0: cheapest, fastest, good enough for trivial work.
		{
			ID: "qwen-turbo", Provider: "alibaba", Tier: 0,
			Capabilities:     []string{"general", "coding", "fast"},
			PriorityKeywords: []string{"quick", "simple", "short"},
			LatencyHintMS:    400, MaxTokens: 8192,
		},
		{
			ID: "gemini-2.0-flash-lite", Provider: "google", Tier: 0,
			Capabilities:     []string{"general", "fast", "rag_search"},
			PriorityKeywords: []string{"search", "lookup"},
			LatencyHintMS:    350, MaxTokens: 8192,
		},

		// Tier 1: everyday workhorses.
		{
			ID: "qwen-plus", Provider: "alibaba", Tier: 1,
			Capabilities:     []string{"general", "coding", "analysis"},
			PriorityKeywords: []string{"explain", "summarize"},
			LatencyHintMS:    800, MaxTokens: 16384,
		},
		{
			ID: "gpt-4o-mini", Provider: "openai", Tier: 1,
			Capabilities:     []string{"general", "coding", "file_search", "general_assistant"},
			PriorityKeywords: []string{"assistant", "help"},
			LatencyHintMS:    700, MaxTokens: 16384,
		},
		{
			ID: "claude-3-5-haiku", Provider: "anthropic", Tier: 1,
			Capabilities:     []string{"general", "coding", "fast"},
			PriorityKeywords: []string{"draft", "rewrite"},
			LatencyHintMS:    600, MaxTokens: 8192,
		},
		{
			ID: "deepseek-v3", Provider: "openrouter", Tier: 1,
			Capabilities:     []string{"general", "coding", "analysis"},
			PriorityKeywords: []string{"translate", "convert"},
			LatencyHintMS:    900, MaxTokens: 16384,
		},

		// Tier 2: strong analysis and coding.
		{
			ID: "gemini-2.5-pro", Provider: "google", Tier: 2,
			Capabilities:     []string{"analysis", "coding", "reasoning", "rag_search"},
			PriorityKeywords: []string{"analyze", "investigate"},
			LatencyHintMS:    1500, MaxTokens: 32768,
		},
		{
			ID: "gpt-4o", Provider: "openai", Tier: 2,
			Capabilities:     []string{"general", "coding", "analysis", "creation", "code_interpreter"},
			PriorityKeywords: []string{"build", "design"},
			LatencyHintMS:    1400, MaxTokens: 16384,
		},
		{
			ID: "qwen-max", Provider: "alibaba", Tier: 2,
			Capabilities:     []string{"analysis", "coding", "reasoning"},
			PriorityKeywords: []string{"optimize", "troubleshoot"},
			LatencyHintMS:    1600, MaxTokens: 32768,
		},

		// Tier 3: flagship reasoning.
		{
			ID: "gpt-5", Provider: "openai", Tier: 3,
			Capabilities:     []string{"reasoning", "coding", "analysis", "critical", "strategy"},
			PriorityKeywords: []string{"strategic", "critical", "architecture"},
			LatencyHintMS:    3000, MaxTokens: 65536,
		},
		{
			ID: "claude-sonnet-4", Provider: "anthropic", Tier: 3,
			Capabilities:     []string{"coding", "analysis", "reasoning", "creation"},
			PriorityKeywords: []string{"refactor", "review"},
			LatencyHintMS:    2800, MaxTokens: 65536,
		},

		// Tier 4: deep-reasoning specialists, priced accordingly.
		{
			ID: "claude-opus-4", Provider: "anthropic", Tier: 4,
			Capabilities:     []string{"reasoning", "critical", "strategy", "coding", "analysis"},
			PriorityKeywords: []string{"research", "prove"},
			LatencyHintMS:    6000, MaxTokens: 65536,
		},
		{
			ID: "o3-pro", Provider: "openai", Tier: 4,
			Capabilities:     []string{"reasoning", "critical", "analysis"},
			PriorityKeywords: []string{"formal", "verify"},
			LatencyHintMS:    9000, MaxTokens: 100000,
		},
	}
}
