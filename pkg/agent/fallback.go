package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/fitcoach/internal/observability"
	"github.com/harun/fitcoach/internal/tracing"
	"github.com/harun/fitcoach/pkg/coachctx"
	"github.com/harun/fitcoach/pkg/stats"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Default character budgets for the degraded path.
const (
	DefaultPrimaryBudget   = 1500
	DefaultSecondaryBudget = 800
	DefaultPromptBudget    = 2000
	DefaultHistoryLimit    = 10
)

// FallbackConfig configures the degraded path.
type FallbackConfig struct {
	Provider    LLMProvider
	Model       string
	Temperature float64
	MaxTokens   int
	UserID      string

	// PrimaryBudget applies to the profile and the most relevant other
	// block; SecondaryBudget to the rest.
	PrimaryBudget   int
	SecondaryBudget int
	// PromptBudget bounds the base system prompt.
	PromptBudget int
	// HistoryLimit keeps only the most recent history messages.
	HistoryLimit int

	// CheckOutput vets the degraded answer like AgentConfig.CheckOutput.
	CheckOutput func(output string) error

	Recorder *stats.Recorder
	Logger   zerolog.Logger
}

// FallbackInput is what the caller supplies for a degraded run.
type FallbackInput struct {
	Input        string
	History      []Message
	SystemPrompt string
	Context      coachctx.Bundle
}

// FallbackRunner answers without tools when the primary path fails.
type FallbackRunner struct {
	cfg    FallbackConfig
	logger zerolog.Logger
}

// NewFallbackRunner creates a fallback runner, filling unset budgets with
// defaults.
func NewFallbackRunner(cfg FallbackConfig) (*FallbackRunner, error) {
	observability.EnsureRegistered()

	if cfg.Provider == nil {
		return nil, ErrNoProvider
	}
	if cfg.Recorder == nil {
		return nil, fmt.Errorf("stats recorder is required")
	}
	if cfg.PrimaryBudget <= 0 {
		cfg.PrimaryBudget = DefaultPrimaryBudget
	}
	if cfg.SecondaryBudget <= 0 {
		cfg.SecondaryBudget = DefaultSecondaryBudget
	}
	if cfg.PromptBudget <= 0 {
		cfg.PromptBudget = DefaultPromptBudget
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}

	return &FallbackRunner{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "fallback_runner").Logger(),
	}, nil
}

// Execute issues one direct model call with a compressed system prompt and
// no tools. A failure here is returned to the caller; there is no further
// fallback.
func (f *FallbackRunner) Execute(ctx context.Context, in FallbackInput) (result ExecutionResult, err error) {
	start := time.Now()
	f.cfg.Recorder.RecordFallback()

	ctx = tracing.WithPath(ctx, observability.PathFallback)
	ctx, span := tracing.StartSpan(ctx, "agent.fallback",
		attribute.String("provider", f.cfg.Provider.Provider()),
	)
	logger := tracing.LoggerFromContext(ctx, f.logger)

	defer func() {
		elapsed := time.Since(start)
		f.cfg.Recorder.RecordOutcome(err == nil, elapsed)
		observability.RecordAgentRun(observability.PathFallback, elapsed, err == nil)
		tracing.EndSpan(span, err)

		if err != nil {
			logger.Error().Err(err).Dur("elapsed", elapsed).Msg("Fallback run failed")
			return
		}
		logger.Info().Dur("elapsed", elapsed).Msg("Fallback run completed")
	}()

	systemPrompt := f.BuildPrompt(in.SystemPrompt, in.Context, in.Input)
	span.SetAttributes(attribute.Int("system_prompt_chars", len(systemPrompt)))

	response, callErr := f.cfg.Provider.Call(ctx, LLMRequest{
		Model:        f.cfg.Model,
		Messages:     buildMessages(f.recentHistory(in.History), in.Input),
		Temperature:  f.cfg.Temperature,
		MaxTokens:    f.cfg.MaxTokens,
		SystemPrompt: systemPrompt,
	})
	if callErr != nil {
		return ExecutionResult{Degraded: true, Iterations: 1}, fmt.Errorf("fallback model call: %w", callErr)
	}
	if f.cfg.CheckOutput != nil {
		if checkErr := f.cfg.CheckOutput(response.Content); checkErr != nil {
			return ExecutionResult{Degraded: true, Iterations: 1}, checkErr
		}
	}

	return ExecutionResult{
		Output:     response.Content,
		ToolTrace:  []ToolTraceEntry{},
		Degraded:   true,
		Iterations: 1,
		Usage:      response.Usage,
	}, nil
}

// BuildPrompt compresses the base prompt and each context block to its
// budget and renders the reduced system prompt.
func (f *FallbackRunner) BuildPrompt(base string, bundle coachctx.Bundle, query string) string {
	if compressed := coachctx.Compress(base, f.cfg.PromptBudget); compressed != base {
		observability.RecordCompression("system_prompt")
		base = compressed
	}

	ranked := coachctx.Ordered(bundle, query)
	sections := make([]ContextSection, 0, len(ranked))
	primaryUsed := false

	for _, blk := range ranked {
		budget := f.cfg.SecondaryBudget
		switch {
		case blk.Name == coachctx.BlockProfile:
			budget = f.cfg.PrimaryBudget
		case !primaryUsed:
			budget = f.cfg.PrimaryBudget
			primaryUsed = true
		}

		body := coachctx.Compress(blk.Content, budget)
		if body != blk.Content {
			observability.RecordCompression(blk.Name)
		}
		sections = append(sections, ContextSection{Title: sectionTitle(blk.Name), Body: body})
	}

	return PromptBuilder{
		Base:     base,
		UserID:   f.cfg.UserID,
		Context:  sections,
		Degraded: true,
	}.Build()
}

func (f *FallbackRunner) recentHistory(history []Message) []Message {
	// Tool exchanges from the failed primary run are meaningless without tools.
	plain := make([]Message, 0, len(history))
	for _, m := range history {
		if m.Role == RoleTool || len(m.ToolCalls) > 0 {
			continue
		}
		plain = append(plain, m)
	}
	if len(plain) > f.cfg.HistoryLimit {
		plain = plain[len(plain)-f.cfg.HistoryLimit:]
	}
	return plain
}

func sectionTitle(block string) string {
	switch block {
	case coachctx.BlockProfile:
		return "User profile"
	case coachctx.BlockDiet:
		return "Diet plan"
	case coachctx.BlockWorkout:
		return "Workout plan"
	case coachctx.BlockProgress:
		return "Recent progress"
	}
	return block
}
