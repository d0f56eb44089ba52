package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main fitcoach configuration
type Config struct {
	// AI provider credentials
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Primary tool-calling path
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Degraded path
	Fallback FallbackConfig `json:"fallback" mapstructure:"fallback"`

	// Retry of the primary path
	Retry RetryConfig `json:"retry" mapstructure:"retry"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Content moderation
	Moderation ModerationConfig `json:"moderation" mapstructure:"moderation"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Profiles []AIProfile `json:"profiles" mapstructure:"profiles"`
}

// AIProfile represents an AI provider profile
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url,omitempty" mapstructure:"base_url"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// AgentConfig configures the tool-calling agent.
type AgentConfig struct {
	Model          string  `json:"model" mapstructure:"model"`
	Temperature    float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens      int     `json:"max_tokens" mapstructure:"max_tokens"`
	MaxIterations  int     `json:"max_iterations" mapstructure:"max_iterations"`
	SystemPrompt   string  `json:"system_prompt" mapstructure:"system_prompt"`
	RateLimitQPS   float64 `json:"rate_limit_qps" mapstructure:"rate_limit_qps"` // 0 disables
	RateLimitBurst int     `json:"rate_limit_burst" mapstructure:"rate_limit_burst"`
	TimeoutSeconds int     `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	// RequestTimeoutSeconds bounds one model call. It must stay below
	// TimeoutSeconds.
	RequestTimeoutSeconds int `json:"request_timeout_seconds" mapstructure:"request_timeout_seconds"`
}

// FallbackConfig holds the character budgets of the degraded path.
type FallbackConfig struct {
	Model           string `json:"model" mapstructure:"model"` // empty uses agent.model
	PrimaryBudget   int    `json:"primary_budget" mapstructure:"primary_budget"`
	SecondaryBudget int    `json:"secondary_budget" mapstructure:"secondary_budget"`
	PromptBudget    int    `json:"prompt_budget" mapstructure:"prompt_budget"`
	HistoryLimit    int    `json:"history_limit" mapstructure:"history_limit"`
}

// RetryConfig holds retry settings for the primary path.
type RetryConfig struct {
	Enabled     bool `json:"enabled" mapstructure:"enabled"`
	MaxRetries  int  `json:"max_retries" mapstructure:"max_retries"`
	BaseDelayMs int  `json:"base_delay_ms" mapstructure:"base_delay_ms"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`

	// Rotation of the log file; MaxSizeMB <= 0 disables it.
	MaxSizeMB  int  `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxAgeDays int  `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool `json:"compress" mapstructure:"compress"`
}

// MetricsConfig configures metric exposure and the periodic stats report.
type MetricsConfig struct {
	Addr           string `json:"addr" mapstructure:"addr"` // empty disables the HTTP endpoint
	ReportSchedule string `json:"report_schedule" mapstructure:"report_schedule"`
}

// ModerationConfig lists content that ends a turn with a safety error.
type ModerationConfig struct {
	Enabled         bool     `json:"enabled" mapstructure:"enabled"`
	BlockedKeywords []string `json:"blocked_keywords" mapstructure:"blocked_keywords"`
	BlockedPatterns []string `json:"blocked_patterns" mapstructure:"blocked_patterns"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		AI: AIConfig{
			Profiles: []AIProfile{},
		},
		Agent: AgentConfig{
			Model:                 "claude-3-5-sonnet-20241022",
			Temperature:           0.7,
			MaxTokens:             1024,
			MaxIterations:         6,
			SystemPrompt:          DefaultSystemPrompt,
			RateLimitQPS:          0,
			RateLimitBurst:        1,
			TimeoutSeconds:        60,
			RequestTimeoutSeconds: 20,
		},
		Fallback: FallbackConfig{
			PrimaryBudget:   1500,
			SecondaryBudget: 800,
			PromptBudget:    2000,
			HistoryLimit:    10,
		},
		Retry: RetryConfig{
			Enabled:     true,
			MaxRetries:  3,
			BaseDelayMs: 1000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Console:    true,
			Pretty:     true,
			Redaction:  true,
			MaxSizeMB:  50,
			MaxAgeDays: 14,
		},
		Metrics: MetricsConfig{
			ReportSchedule: "@every 5m",
		},
		Moderation: ModerationConfig{
			Enabled:         false,
			BlockedKeywords: []string{},
			BlockedPatterns: []string{},
		},
	}
}

// DefaultSystemPrompt is used when agent.system_prompt is not configured.
const DefaultSystemPrompt = "You are a friendly, evidence-based fitness and nutrition coach. " +
	"Use the user's profile, plans and progress to give specific, safe advice. " +
	"Call a tool when you need exact numbers or a full plan."

// String returns a JSON representation of the config with API keys masked.
func (c *Config) String() string {
	masked := *c
	masked.AI.Profiles = make([]AIProfile, len(c.AI.Profiles))
	for i, p := range c.AI.Profiles {
		if p.APIKey != "" {
			p.APIKey = "***"
		}
		masked.AI.Profiles[i] = p
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Require at least one AI profile
	if len(c.AI.Profiles) == 0 {
		return fmt.Errorf("no AI credentials configured: at least one AI profile is required")
	}

	for i, profile := range c.AI.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("AI profile %d: ID is required", i)
		}
		if profile.Provider == "" {
			return fmt.Errorf("AI profile %s: provider is required", profile.ID)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("AI profile %s: api_key is required", profile.ID)
		}
		if profile.Provider != "anthropic" && profile.Provider != "openai" {
			return fmt.Errorf("AI profile %s: invalid provider %s (must be: anthropic, openai)", profile.ID, profile.Provider)
		}
	}

	if c.Agent.Model == "" {
		return fmt.Errorf("agent model is required")
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent max_iterations must be positive")
	}
	if c.Fallback.PrimaryBudget <= 0 || c.Fallback.SecondaryBudget <= 0 {
		return fmt.Errorf("fallback budgets must be positive")
	}

	return nil
}
