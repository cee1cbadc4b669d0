package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Budget       BudgetConfig       `mapstructure:"budget"`
	Routing      RoutingConfig      `mapstructure:"routing"`
	Collab       CollabConfig       `mapstructure:"collaboration"`
	Analyzer     AnalyzerConfig     `mapstructure:"analyzer"`
	Quality      QualityConfig      `mapstructure:"quality"`
	Providers    ProvidersConfig    `mapstructure:"providers"`
	Models       []ModelConfig      `mapstructure:"models"`
	Trace        TraceConfig        `mapstructure:"trace"`
	Conversation ConversationConfig `mapstructure:"conversation"`
}

type ServerConfig struct {
	Port             int           `mapstructure:"port"`
	MetricsPort      int           `mapstructure:"metrics_port"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdown time.Duration `mapstructure:"graceful_shutdown"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdleConns    int           `mapstructure:"max_idle_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Burst             int           `mapstructure:"burst"`
	Window            time.Duration `mapstructure:"window"`
}

// BudgetConfig is the monthly spend contract enforced by admission control.
// It round-trips through the admin API, hence the json tags.
type BudgetConfig struct {
	MonthlyBudget     float64            `mapstructure:"monthly_budget" json:"monthly_budget"`
	WarningThreshold  float64            `mapstructure:"warning_threshold" json:"warning_threshold"`
	CriticalThreshold float64            `mapstructure:"critical_threshold" json:"critical_threshold"`
	AutoPauseAtLimit  bool               `mapstructure:"auto_pause_at_limit" json:"auto_pause_at_limit"`
	MaxRequestCost    float64            `mapstructure:"max_request_cost" json:"max_request_cost"`
	MaxSessionCost    float64            `mapstructure:"max_session_cost" json:"max_session_cost"`
	BudgetResetDay    int                `mapstructure:"budget_reset_day" json:"budget_reset_day"`
	Timezone          string             `mapstructure:"timezone" json:"timezone"`
	TierAllocation    map[string]float64 `mapstructure:"tier_allocation" json:"tier_allocation,omitempty"`
}

type RoutingConfig struct {
	DefaultTier             int              `mapstructure:"default_tier"`
	FallbackEnabled         bool             `mapstructure:"fallback_enabled"`
	Timeout                 time.Duration    `mapstructure:"timeout"`
	RetryAttempts           int              `mapstructure:"retry_attempts"`
	FlagshipModel           string           `mapstructure:"flagship_model"`
	CriticalSignalThreshold int              `mapstructure:"critical_signal_threshold"`
	Escalation              EscalationConfig `mapstructure:"escalation"`
	TaskRules               []TaskRule       `mapstructure:"task_rules"`
}

// EscalationConfig maps the combined escalation score onto routing floors.
type EscalationConfig struct {
	ForceFlagshipScore   int     `mapstructure:"force_flagship_score"`
	SuppressLowTierScore int     `mapstructure:"suppress_low_tier_score"`
	PreferHighTierScore  int     `mapstructure:"prefer_high_tier_score"`
	LowTierPenalty       float64 `mapstructure:"low_tier_penalty"`
}

// TaskRule overrides classification for prompts matching its keywords.
type TaskRule struct {
	TaskType      string   `mapstructure:"task_type"`
	Keywords      []string `mapstructure:"keywords"`
	PreferredTier int      `mapstructure:"preferred_tier"`
	MinTier       int      `mapstructure:"min_tier"`
}

type CollabConfig struct {
	CascadeEnabled           bool    `mapstructure:"cascade_enabled"`
	RefinementEnabled        bool    `mapstructure:"refinement_enabled"`
	ParallelEnabled          bool    `mapstructure:"parallel_enabled"`
	DifficultyThreshold      float64 `mapstructure:"difficulty_threshold"`
	MaxRetries               int     `mapstructure:"max_retries"`
	QCDepth                  string  `mapstructure:"qc_depth"`
	MaxSubtasks              int     `mapstructure:"max_subtasks"`
	AutoEscalateAfterRetries int     `mapstructure:"auto_escalate_after_retries"`
	MinScore                 float64 `mapstructure:"min_score"`
	RequiresReview           float64 `mapstructure:"requires_review"`
}

type AnalyzerConfig struct {
	MaxPromptChars        int     `mapstructure:"max_prompt_chars"`
	OutputTokenCeiling    int     `mapstructure:"output_token_ceiling"`
	EscalationFactorLimit float64 `mapstructure:"escalation_factor_limit"`
}

type QualityConfig struct {
	MinResponseLength int     `mapstructure:"min_response_length"`
	MinConfidence     float64 `mapstructure:"min_confidence"`
}

type ProvidersConfig struct {
	Alibaba    ProviderCredentials `mapstructure:"alibaba"`
	Google     ProviderCredentials `mapstructure:"google"`
	Anthropic  ProviderCredentials `mapstructure:"anthropic"`
	OpenAI     ProviderCredentials `mapstructure:"openai"`
	OpenRouter ProviderCredentials `mapstructure:"openrouter"`
}

type ProviderCredentials struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Enabled bool   `mapstructure:"enabled"`
}

// For returns the credentials for a provider family name.
func (p ProvidersConfig) For(name string) ProviderCredentials {
	switch name {
	case "alibaba":
		return p.Alibaba
	case "google":
		return p.Google
	case "anthropic":
		return p.Anthropic
	case "openai":
		return p.OpenAI
	case "openrouter":
		return p.OpenRouter
	}
	return ProviderCredentials{}
}

// ModelConfig is one catalog entry. The registry turns these into routable
// models at startup.
type ModelConfig struct {
	ID               string                `mapstructure:"id"`
	Provider         string                `mapstructure:"provider"`
	Tier             int                   `mapstructure:"tier"`
	Capabilities     []string              `mapstructure:"capabilities"`
	PriorityKeywords []string              `mapstructure:"priority_keywords"`
	LatencyHintMS    int                   `mapstructure:"latency_hint_ms"`
	MaxTokens        int                   `mapstructure:"max_tokens"`
	Pricing          *ModelPricingOverride `mapstructure:"pricing"`
}

type ModelPricingOverride struct {
	InputPer1K     float64         `mapstructure:"input_per_1k"`
	OutputPer1K    float64         `mapstructure:"output_per_1k"`
	CachedPer1K    float64         `mapstructure:"cached_per_1k"`
	ReasoningPer1K float64         `mapstructure:"reasoning_per_1k"`
	MinimumCharge  float64         `mapstructure:"minimum_charge"`
	FreeTier       *FreeTierConfig `mapstructure:"free_tier"`
}

type FreeTierConfig struct {
	RequestsPerMonth int `mapstructure:"requests_per_month"`
	TokensPerMonth   int `mapstructure:"tokens_per_month"`
	ResetDay         int `mapstructure:"reset_day"`
}

type TraceConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	AnalysisTTL   time.Duration `mapstructure:"analysis_ttl"`
	MetricsTTL    time.Duration `mapstructure:"metrics_ttl"`
	DailyCostsTTL time.Duration `mapstructure:"daily_costs_ttl"`
}

type ConversationConfig struct {
	WindowTurns int           `mapstructure:"window_turns"`
	TTL         time.Duration `mapstructure:"ttl"`
}

var cfg *Config

func Load(configPath string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.AddConfigPath(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/llm-orchestrator")
	}

	setDefaults()

	viper.AutomaticEnv()
	bindEnvVars()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	expandProviderKeys()

	var config Config
	// Unknown keys fail startup instead of being silently dropped.
	strict := func(dc *mapstructure.DecoderConfig) { dc.ErrorUnused = true }
	if err := viper.Unmarshal(&config, strict); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if len(config.Models) == 0 {
		config.Models = DefaultModels()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	cfg = &config
	return cfg, nil
}

// expandProviderKeys substitutes ${ENV_VAR} references in provider api_key
// entries before decoding.
func expandProviderKeys() {
	raw := viper.Get("providers")
	providers, ok := raw.(map[string]interface{})
	if !ok {
		return
	}
	for name, entryRaw := range providers {
		entry, ok := entryRaw.(map[string]interface{})
		if !ok {
			continue
		}
		apiKey, ok := entry["api_key"].(string)
		if !ok || len(apiKey) < 4 {
			continue
		}
		if apiKey[0] == '$' && apiKey[1] == '{' && apiKey[len(apiKey)-1] == '}' {
			envVar := apiKey[2 : len(apiKey)-1]
			if val := os.Getenv(envVar); val != "" {
				entry["api_key"] = val
			} else {
				entry["api_key"] = ""
			}
		}
		providers[name] = entry
	}
	viper.Set("providers", providers)
}

func setDefaults() {
	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.metrics_port", 9090)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "300s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.graceful_shutdown", "30s")

	// Database
	viper.SetDefault("database.max_connections", 100)
	viper.SetDefault("database.max_idle_connections", 10)
	viper.SetDefault("database.conn_max_lifetime", "1h")

	// Redis
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 100)

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
	viper.SetDefault("logging.output_path", "")

	// CORS
	viper.SetDefault("cors.allow_credentials", true)
	viper.SetDefault("cors.max_age", 86400)

	// Rate limiting
	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.requests_per_minute", 600)
	viper.SetDefault("rate_limit.burst", 10)
	viper.SetDefault("rate_limit.window", "1m")

	// Budget
	viper.SetDefault("budget.monthly_budget", 70.0)
	viper.SetDefault("budget.warning_threshold", 0.8)
	viper.SetDefault("budget.critical_threshold", 0.95)
	viper.SetDefault("budget.auto_pause_at_limit", true)
	viper.SetDefault("budget.max_request_cost", 2.0)
	viper.SetDefault("budget.max_session_cost", 10.0)
	viper.SetDefault("budget.budget_reset_day", 1)
	viper.SetDefault("budget.timezone", "UTC")

	// Routing
	viper.SetDefault("routing.default_tier", 1)
	viper.SetDefault("routing.fallback_enabled", true)
	viper.SetDefault("routing.timeout", "30s")
	viper.SetDefault("routing.retry_attempts", 2)
	viper.SetDefault("routing.flagship_model", "gpt-5")
	viper.SetDefault("routing.critical_signal_threshold", 2)
	viper.SetDefault("routing.escalation.force_flagship_score", 5)
	viper.SetDefault("routing.escalation.suppress_low_tier_score", 3)
	viper.SetDefault("routing.escalation.prefer_high_tier_score", 2)
	viper.SetDefault("routing.escalation.low_tier_penalty", 0.2)

	// Collaboration
	viper.SetDefault("collaboration.cascade_enabled", true)
	viper.SetDefault("collaboration.refinement_enabled", false)
	viper.SetDefault("collaboration.parallel_enabled", true)
	viper.SetDefault("collaboration.difficulty_threshold", 0.5)
	viper.SetDefault("collaboration.max_retries", 2)
	viper.SetDefault("collaboration.qc_depth", "full")
	viper.SetDefault("collaboration.max_subtasks", 10)
	viper.SetDefault("collaboration.auto_escalate_after_retries", 2)
	viper.SetDefault("collaboration.min_score", 70.0)
	viper.SetDefault("collaboration.requires_review", 60.0)

	// Analyzer
	viper.SetDefault("analyzer.max_prompt_chars", 50000)
	viper.SetDefault("analyzer.output_token_ceiling", 8000)
	viper.SetDefault("analyzer.escalation_factor_limit", 1.5)

	// Quality
	viper.SetDefault("quality.min_response_length", 50)
	viper.SetDefault("quality.min_confidence", 0.3)

	// Providers are disabled unless a key arrives via config or env.
	for _, p := range []string{"alibaba", "google", "anthropic", "openai", "openrouter"} {
		viper.SetDefault("providers."+p+".enabled", true)
		viper.SetDefault("providers."+p+".api_key", "")
		viper.SetDefault("providers."+p+".base_url", "")
	}

	// Trace sink
	viper.SetDefault("trace.enabled", true)
	viper.SetDefault("trace.analysis_ttl", "72h")
	viper.SetDefault("trace.metrics_ttl", "720h")
	viper.SetDefault("trace.daily_costs_ttl", "720h")

	// Conversation store
	viper.SetDefault("conversation.window_turns", 10)
	viper.SetDefault("conversation.ttl", "24h")
}

func bindEnvVars() {
	// Server
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.metrics_port", "METRICS_PORT")

	// Database
	_ = viper.BindEnv("database.url", "DATABASE_URL")
	_ = viper.BindEnv("database.max_connections", "DATABASE_MAX_CONNECTIONS")

	// Redis
	_ = viper.BindEnv("redis.url", "REDIS_URL")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")

	// Logging
	_ = viper.BindEnv("logging.level", "LOG_LEVEL")
	_ = viper.BindEnv("logging.format", "LOG_FORMAT")

	// Budget
	_ = viper.BindEnv("budget.monthly_budget", "MONTHLY_BUDGET")
	_ = viper.BindEnv("budget.max_request_cost", "MAX_REQUEST_COST")

	// Provider keys
	_ = viper.BindEnv("providers.alibaba.api_key", "DASHSCOPE_API_KEY")
	_ = viper.BindEnv("providers.google.api_key", "GEMINI_API_KEY")
	_ = viper.BindEnv("providers.anthropic.api_key", "ANTHROPIC_API_KEY")
	_ = viper.BindEnv("providers.openai.api_key", "OPENAI_API_KEY")
	_ = viper.BindEnv("providers.openrouter.api_key", "OPENROUTER_API_KEY")

	// CORS
	_ = viper.BindEnv("cors.allowed_origins", "CORS_ALLOWED_ORIGINS")
}

// Validate rejects configurations that would violate accounting or routing
// invariants at runtime.
// Validate checks the budget contract in isolation; the admin API applies
// the same rules to runtime updates.
func (b BudgetConfig) Validate() error {
	if b.MonthlyBudget <= 0 {
		return fmt.Errorf("budget.monthly_budget must be positive, got %v", b.MonthlyBudget)
	}
	if b.WarningThreshold < 0 || b.WarningThreshold > 1 {
		return fmt.Errorf("budget.warning_threshold must be in [0,1], got %v", b.WarningThreshold)
	}
	if b.CriticalThreshold < 0 || b.CriticalThreshold > 1 {
		return fmt.Errorf("budget.critical_threshold must be in [0,1], got %v", b.CriticalThreshold)
	}
	if b.CriticalThreshold < b.WarningThreshold {
		return fmt.Errorf("budget.critical_threshold (%v) must be >= warning_threshold (%v)",
			b.CriticalThreshold, b.WarningThreshold)
	}
	if b.BudgetResetDay < 1 || b.BudgetResetDay > 28 {
		return fmt.Errorf("budget.budget_reset_day must be in [1,28], got %d", b.BudgetResetDay)
	}
	if b.Timezone != "" {
		if _, err := time.LoadLocation(b.Timezone); err != nil {
			return fmt.Errorf("budget.timezone: %w", err)
		}
	}
	for tier := range b.TierAllocation {
		if !validTierKey(tier) {
			return fmt.Errorf("budget.tier_allocation: invalid tier key %q", tier)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if err := c.Budget.Validate(); err != nil {
		return err
	}

	if c.Routing.DefaultTier < 0 || c.Routing.DefaultTier > 4 {
		return fmt.Errorf("routing.default_tier must be in [0,4], got %d", c.Routing.DefaultTier)
	}
	if c.Routing.Timeout <= 0 {
		return fmt.Errorf("routing.timeout must be positive")
	}

	if c.Collab.QCDepth != "quick" && c.Collab.QCDepth != "full" {
		return fmt.Errorf("collaboration.qc_depth must be quick or full, got %q", c.Collab.QCDepth)
	}
	if c.Collab.DifficultyThreshold < 0 || c.Collab.DifficultyThreshold > 1 {
		return fmt.Errorf("collaboration.difficulty_threshold must be in [0,1], got %v",
			c.Collab.DifficultyThreshold)
	}
	if c.Collab.MaxSubtasks < 1 {
		return fmt.Errorf("collaboration.max_subtasks must be >= 1, got %d", c.Collab.MaxSubtasks)
	}

	if c.Analyzer.MaxPromptChars <= 0 {
		return fmt.Errorf("analyzer.max_prompt_chars must be positive")
	}
	if c.Analyzer.OutputTokenCeiling <= 0 {
		return fmt.Errorf("analyzer.output_token_ceiling must be positive")
	}

	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if m.ID == "" {
			return fmt.Errorf("models: entry with empty id")
		}
		if seen[m.ID] {
			return fmt.Errorf("models: duplicate id %q", m.ID)
		}
		seen[m.ID] = true
		if m.Tier < 0 || m.Tier > 4 {
			return fmt.Errorf("models: %q tier must be in [0,4], got %d", m.ID, m.Tier)
		}
		switch m.Provider {
		case "alibaba", "google", "anthropic", "openai", "openrouter":
		default:
			return fmt.Errorf("models: %q has unknown provider %q", m.ID, m.Provider)
		}
		if m.Pricing != nil && m.Pricing.FreeTier != nil {
			ft := m.Pricing.FreeTier
			if ft.ResetDay < 1 || ft.ResetDay > 28 {
				return fmt.Errorf("models: %q free_tier.reset_day must be in [1,28]", m.ID)
			}
		}
	}

	return nil
}

func validTierKey(key string) bool {
	switch key {
	case "0", "1", "2", "3", "4":
		return true
	}
	return false
}

func Get() *Config {
	return cfg
}
