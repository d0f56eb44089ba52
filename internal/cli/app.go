package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/harun/fitcoach/internal/config"
	"github.com/harun/fitcoach/internal/logger"
	"github.com/harun/fitcoach/pkg/agent"
	"github.com/harun/fitcoach/pkg/coach"
	"github.com/harun/fitcoach/pkg/coachctx"
	"github.com/harun/fitcoach/pkg/moderation"
	"github.com/harun/fitcoach/pkg/retry"
	"github.com/harun/fitcoach/pkg/stats"
	"github.com/harun/fitcoach/pkg/tools"
)

// newProvider builds the LLM provider from config. Tests replace it.
var newProvider = func(cfg *config.Config) (agent.LLMProvider, error) {
	profiles := make([]agent.AuthProfile, 0, len(cfg.AI.Profiles))
	for _, p := range cfg.AI.Profiles {
		profiles = append(profiles, agent.AuthProfile{
			ID:       p.ID,
			Provider: p.Provider,
			APIKey:   p.APIKey,
			BaseURL:  p.BaseURL,
			Priority: p.Priority,
		})
	}
	return agent.NewProviderFromProfiles(&agent.ProviderFactory{}, profiles)
}

// app is everything a command needs to run turns.
type app struct {
	cfg     *config.Config
	loader  *config.Loader
	log     *logger.Logger
	service *coach.Service
}

func newApp(stderr io.Writer) (*app, error) {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	lg, err := logger.New(logger.Config{
		Level:      level,
		File:       cfg.Logging.File,
		Console:    cfg.Logging.Console,
		Pretty:     cfg.Logging.Pretty,
		Redaction:  cfg.Logging.Redaction,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
		Output:     stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	zl := lg.Zerolog()
	for _, verr := range config.NewValidator().ValidateConfig(cfg) {
		zl.Warn().Err(verr).Msg("Configuration warning")
	}

	provider, err := newProvider(cfg)
	if err != nil {
		_ = lg.Close()
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}
	provider = agent.NewTimeoutProvider(provider, time.Duration(cfg.Agent.RequestTimeoutSeconds)*time.Second)
	provider = agent.NewRateLimitedProvider(provider, cfg.Agent.RateLimitQPS, cfg.Agent.RateLimitBurst)

	filter, err := moderation.New(moderation.Config{
		Enabled:         cfg.Moderation.Enabled,
		BlockedKeywords: cfg.Moderation.BlockedKeywords,
		BlockedPatterns: cfg.Moderation.BlockedPatterns,
	})
	if err != nil {
		_ = lg.Close()
		return nil, fmt.Errorf("failed to create moderation filter: %w", err)
	}

	fallbackModel := cfg.Fallback.Model
	if fallbackModel == "" {
		fallbackModel = cfg.Agent.Model
	}

	service, err := coach.New(coach.Options{
		Agent: agent.AgentConfig{
			Provider:      provider,
			Tools:         tools.Builtins(),
			Model:         cfg.Agent.Model,
			Temperature:   cfg.Agent.Temperature,
			MaxTokens:     cfg.Agent.MaxTokens,
			MaxIterations: cfg.Agent.MaxIterations,
		},
		Fallback: agent.FallbackConfig{
			Model:           fallbackModel,
			PrimaryBudget:   cfg.Fallback.PrimaryBudget,
			SecondaryBudget: cfg.Fallback.SecondaryBudget,
			PromptBudget:    cfg.Fallback.PromptBudget,
			HistoryLimit:    cfg.Fallback.HistoryLimit,
		},
		Moderation:   filter,
		RetryEnabled: cfg.Retry.Enabled,
		Retry: retry.Config{
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond,
		},
		Recorder: stats.NewRecorder(),
		Logger:   lg.Zerolog(),
	})
	if err != nil {
		_ = lg.Close()
		return nil, err
	}

	return &app{cfg: cfg, loader: loader, log: lg, service: service}, nil
}

func (a *app) Close() error {
	return a.log.Close()
}

func (a *app) turnTimeout() time.Duration {
	return time.Duration(a.cfg.Agent.TimeoutSeconds) * time.Second
}

// contextFlags holds the --profile/--diet/--workout/--progress values. A
// value starting with @ names a file to read.
type contextFlags struct {
	profile  string
	diet     string
	workout  string
	progress string
}

func (f contextFlags) bundle() (coachctx.Bundle, error) {
	var b coachctx.Bundle
	for _, item := range []struct {
		raw string
		dst *string
	}{
		{f.profile, &b.Profile},
		{f.diet, &b.Diet},
		{f.workout, &b.Workout},
		{f.progress, &b.Progress},
	} {
		v, err := readValue(item.raw)
		if err != nil {
			return coachctx.Bundle{}, err
		}
		*item.dst = v
	}
	return b, nil
}

func readValue(raw string) (string, error) {
	if !strings.HasPrefix(raw, "@") {
		return raw, nil
	}
	data, err := os.ReadFile(strings.TrimPrefix(raw, "@"))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", raw, err)
	}
	return string(data), nil
}
