package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FITCOACH_AGENT_MODEL.
const EnvPrefix = "FITCOACH"

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".fitcoach", "fitcoach.json")
}

func (l *Loader) newViper() (*viper.Viper, bool, error) {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	// Provider keys can come from the usual variables when no profile is set.
	_ = v.BindEnv("anthropic_api_key", EnvPrefix+"_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("openai_api_key", EnvPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY")

	configPath := l.GetConfigPath()
	if configPath == "" {
		return v, false, nil
	}
	v.SetConfigFile(configPath)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return v, false, nil
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, false, fmt.Errorf("failed to read config file: %w", err)
	}
	return v, true, nil
}

// setDefaults registers every scalar key so AutomaticEnv can override it
// even when the file does not mention it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("agent.model", cfg.Agent.Model)
	v.SetDefault("agent.temperature", cfg.Agent.Temperature)
	v.SetDefault("agent.max_tokens", cfg.Agent.MaxTokens)
	v.SetDefault("agent.max_iterations", cfg.Agent.MaxIterations)
	v.SetDefault("agent.system_prompt", cfg.Agent.SystemPrompt)
	v.SetDefault("agent.rate_limit_qps", cfg.Agent.RateLimitQPS)
	v.SetDefault("agent.rate_limit_burst", cfg.Agent.RateLimitBurst)
	v.SetDefault("agent.timeout_seconds", cfg.Agent.TimeoutSeconds)
	v.SetDefault("agent.request_timeout_seconds", cfg.Agent.RequestTimeoutSeconds)
	v.SetDefault("fallback.model", cfg.Fallback.Model)
	v.SetDefault("fallback.primary_budget", cfg.Fallback.PrimaryBudget)
	v.SetDefault("fallback.secondary_budget", cfg.Fallback.SecondaryBudget)
	v.SetDefault("fallback.prompt_budget", cfg.Fallback.PromptBudget)
	v.SetDefault("fallback.history_limit", cfg.Fallback.HistoryLimit)
	v.SetDefault("retry.enabled", cfg.Retry.Enabled)
	v.SetDefault("retry.max_retries", cfg.Retry.MaxRetries)
	v.SetDefault("retry.base_delay_ms", cfg.Retry.BaseDelayMs)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)
	v.SetDefault("logging.max_size_mb", cfg.Logging.MaxSizeMB)
	v.SetDefault("logging.max_age_days", cfg.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", cfg.Logging.Compress)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
	v.SetDefault("metrics.report_schedule", cfg.Metrics.ReportSchedule)
	v.SetDefault("moderation.enabled", cfg.Moderation.Enabled)
	v.SetDefault("data_dir", cfg.DataDir)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	envKeys := map[string]string{
		"anthropic": v.GetString("anthropic_api_key"),
		"openai":    v.GetString("openai_api_key"),
	}
	if len(cfg.AI.Profiles) == 0 {
		for i, provider := range []string{"anthropic", "openai"} {
			if key := envKeys[provider]; key != "" {
				cfg.AI.Profiles = append(cfg.AI.Profiles, AIProfile{ID: "env-" + provider, Provider: provider, APIKey: key, Priority: i + 1})
			}
		}
	}
	for i := range cfg.AI.Profiles {
		if cfg.AI.Profiles[i].APIKey == "" {
			cfg.AI.Profiles[i].APIKey = envKeys[cfg.AI.Profiles[i].Provider]
		}
	}

	// Set data directory if not specified
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".fitcoach")
	}

	// Relative log files live under the data directory
	if cfg.Logging.File != "" && !filepath.IsAbs(cfg.Logging.File) {
		cfg.Logging.File = filepath.Join(cfg.DataDir, cfg.Logging.File)
	}

	return cfg, nil
}

// Load loads the configuration from file and environment. A missing file
// yields the defaults with environment overrides applied.
func (l *Loader) Load() (*Config, error) {
	v, _, err := l.newViper()
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// Watch calls onChange with the re-decoded config each time the file is
// written. The file must exist.
func (l *Loader) Watch(onChange func(*Config, error)) error {
	v, found, err := l.newViper()
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("config file %s does not exist", l.GetConfigPath())
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(decode(v))
	})
	v.WatchConfig()
	return nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to determine config path")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("ai", cfg.AI)
	v.Set("agent", cfg.Agent)
	v.Set("fallback", cfg.Fallback)
	v.Set("retry", cfg.Retry)
	v.Set("logging", cfg.Logging)
	v.Set("metrics", cfg.Metrics)
	v.Set("moderation", cfg.Moderation)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
