package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
)

// MaxRetriesLimit is the largest accepted retry.max_retries.
const MaxRetriesLimit = 10

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateSchedule validates a cron spec such as "@every 5m" or "*/5 * * * *".
func (v *Validator) ValidateSchedule(spec string) error {
	if spec == "" {
		return nil // reporting disabled
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid report schedule %q: %w", spec, err)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	for i, profile := range cfg.AI.Profiles {
		if profile.Provider != "" {
			if err := v.ValidateAPIKey(profile.APIKey, profile.Provider); err != nil {
				errors = append(errors, fmt.Errorf("AI profile %d (%s): %w", i, profile.ID, err))
			}
		}
	}

	if err := v.ValidateTemperature(cfg.Agent.Temperature); err != nil {
		errors = append(errors, fmt.Errorf("agent: %w", err))
	}
	if err := v.ValidateMaxTokens(cfg.Agent.MaxTokens); err != nil {
		errors = append(errors, fmt.Errorf("agent: %w", err))
	}
	if cfg.Agent.MaxIterations <= 0 {
		errors = append(errors, fmt.Errorf("agent.max_iterations must be > 0"))
	}
	if cfg.Agent.RateLimitQPS < 0 {
		errors = append(errors, fmt.Errorf("agent.rate_limit_qps must be >= 0"))
	}
	if cfg.Agent.RateLimitQPS > 0 && cfg.Agent.RateLimitBurst <= 0 {
		errors = append(errors, fmt.Errorf("agent.rate_limit_burst must be > 0 when rate limiting is on"))
	}
	if cfg.Agent.TimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("agent.timeout_seconds must be >= 0"))
	}
	if cfg.Agent.RequestTimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("agent.request_timeout_seconds must be >= 0"))
	} else if cfg.Agent.TimeoutSeconds > 0 && cfg.Agent.RequestTimeoutSeconds >= cfg.Agent.TimeoutSeconds {
		errors = append(errors, fmt.Errorf("agent.request_timeout_seconds must be below timeout_seconds"))
	}

	if cfg.Fallback.PrimaryBudget <= 0 {
		errors = append(errors, fmt.Errorf("fallback.primary_budget must be > 0"))
	}
	if cfg.Fallback.SecondaryBudget <= 0 {
		errors = append(errors, fmt.Errorf("fallback.secondary_budget must be > 0"))
	}
	if cfg.Fallback.SecondaryBudget > cfg.Fallback.PrimaryBudget {
		errors = append(errors, fmt.Errorf("fallback.secondary_budget must not exceed primary_budget"))
	}
	if cfg.Fallback.PromptBudget < 0 || cfg.Fallback.HistoryLimit < 0 {
		errors = append(errors, fmt.Errorf("fallback.prompt_budget and history_limit must be >= 0"))
	}

	if cfg.Retry.MaxRetries < 0 {
		errors = append(errors, fmt.Errorf("retry.max_retries must be >= 0"))
	} else if cfg.Retry.MaxRetries > MaxRetriesLimit {
		errors = append(errors, fmt.Errorf("retry.max_retries must be <= %d", MaxRetriesLimit))
	}
	if cfg.Retry.BaseDelayMs < 0 {
		errors = append(errors, fmt.Errorf("retry.base_delay_ms must be >= 0"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateSchedule(cfg.Metrics.ReportSchedule); err != nil {
		errors = append(errors, err)
	}

	for i, p := range cfg.Moderation.BlockedPatterns {
		if _, err := regexp.Compile(p); err != nil {
			errors = append(errors, fmt.Errorf("moderation pattern %d: %w", i, err))
		}
	}

	return errors
}
