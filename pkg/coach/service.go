// Package coach runs one coaching turn end to end: context ranking, the
// tool-calling agent with selective retries, and the degraded fallback.
package coach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/fitcoach/internal/observability"
	"github.com/harun/fitcoach/internal/tracing"
	"github.com/harun/fitcoach/pkg/agent"
	"github.com/harun/fitcoach/pkg/agenterr"
	"github.com/harun/fitcoach/pkg/coachctx"
	"github.com/harun/fitcoach/pkg/moderation"
	"github.com/harun/fitcoach/pkg/retry"
	"github.com/harun/fitcoach/pkg/stats"
	"github.com/harun/fitcoach/pkg/tools"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Turn outcomes reported to metrics.
const (
	OutcomeSuccess  = "success"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
	OutcomeAborted  = "aborted"
	OutcomeBlocked  = "blocked"
)

// Options configures a Service.
type Options struct {
	// Agent is the template for the primary path. UserID is set per turn.
	Agent agent.AgentConfig
	// Fallback configures the degraded path. Provider defaults to
	// Agent.Provider and Model to Agent.Model.
	Fallback agent.FallbackConfig

	RetryEnabled bool
	Retry        retry.Config

	// Moderation screens questions and answers. Nil disables it.
	Moderation *moderation.ContentFilter

	Recorder *stats.Recorder
	Logger   zerolog.Logger
}

// Turn is one user message plus everything needed to answer it.
type Turn struct {
	UserID       string
	Input        string
	SystemPrompt string
	History      []agent.Message
	Context      coachctx.Bundle
}

// Reply is the answer to a turn. Kind is the primary path's failure kind
// when Result.Degraded is set.
type Reply struct {
	Result agent.ExecutionResult
	TurnID string
	Kind   agenterr.Kind
}

// Service answers coaching turns.
type Service struct {
	opts   Options
	logger zerolog.Logger
}

// New creates a Service.
func New(opts Options) (*Service, error) {
	if opts.Agent.Provider == nil {
		return nil, agent.ErrNoProvider
	}
	if opts.Recorder == nil {
		opts.Recorder = stats.NewRecorder()
	}
	if opts.Fallback.Provider == nil {
		opts.Fallback.Provider = opts.Agent.Provider
	}
	if opts.Fallback.Model == "" {
		opts.Fallback.Model = opts.Agent.Model
	}
	if opts.Fallback.MaxTokens == 0 {
		opts.Fallback.MaxTokens = opts.Agent.MaxTokens
	}
	if opts.Fallback.Temperature == 0 {
		opts.Fallback.Temperature = opts.Agent.Temperature
	}
	opts.Fallback.Recorder = opts.Recorder
	opts.Fallback.Logger = opts.Logger

	return &Service{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "coach").Logger(),
	}, nil
}

// Stats returns the shared recorder's current snapshot.
func (s *Service) Stats() stats.Snapshot {
	return s.opts.Recorder.Snapshot()
}

// Recorder returns the recorder shared by both paths.
func (s *Service) Recorder() *stats.Recorder {
	return s.opts.Recorder
}

// Respond runs the primary path and falls back to a degraded answer when it
// fails. If the fallback also fails, the returned error is an
// *agenterr.TurnError whose message is safe to show the user.
func (s *Service) Respond(ctx context.Context, turn Turn) (reply Reply, err error) {
	ctx = tracing.NewTurnContext(ctx, turn.UserID)
	ctx = tools.WithBundle(ctx, turn.Context)
	reply.TurnID = tracing.GetTurnID(ctx)

	ctx, span := tracing.StartSpan(ctx, "coach.respond",
		attribute.String("turn_id", reply.TurnID),
	)
	defer func() {
		span.SetAttributes(attribute.Bool("degraded", reply.Result.Degraded))
		tracing.EndSpan(span, err)
	}()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	if blockErr := s.opts.Moderation.CheckPrompt(turn.Input); blockErr != nil {
		return reply, s.blocked(ctx, reply.TurnID, blockErr)
	}

	systemPrompt := agent.PromptBuilder{
		Base: turn.SystemPrompt,
		Context: []agent.ContextSection{
			{Title: "User context", Body: coachctx.Rank(turn.Context, turn.Input)},
		},
	}.Build()

	result, primaryErr := s.runPrimary(ctx, turn, reply.TurnID, systemPrompt)
	if primaryErr == nil {
		observability.RecordTurn(OutcomeSuccess)
		reply.Result = result
		return reply, nil
	}

	if errors.Is(primaryErr, moderation.ErrBlocked) {
		return reply, s.blocked(ctx, reply.TurnID, primaryErr)
	}

	kind := agenterr.Classify(primaryErr)
	reply.Kind = kind
	observability.RecordError(observability.PathPrimary, kind.String())

	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Warn().Err(primaryErr).Msg("Turn abandoned before completion")
		observability.RecordTurn(OutcomeAborted)
		return reply, agenterr.NewTurnError(reply.TurnID, primaryErr)
	}

	logger.Warn().
		Err(primaryErr).
		Str("kind", kind.String()).
		Msg("Primary path failed, falling back")
	observability.RecordFallback(kind.String())

	fallback, err := agent.NewFallbackRunner(s.fallbackConfig(turn.UserID, reply.TurnID))
	if err != nil {
		observability.RecordTurn(OutcomeFailed)
		return reply, fmt.Errorf("create fallback runner: %w", err)
	}

	// The primary prompt already carries the full ranked context; the
	// fallback budgets the blocks itself.
	result, fallbackErr := fallback.Execute(ctx, agent.FallbackInput{
		Input:        turn.Input,
		History:      turn.History,
		SystemPrompt: turn.SystemPrompt,
		Context:      turn.Context,
	})
	if errors.Is(fallbackErr, moderation.ErrBlocked) {
		return reply, s.blocked(ctx, reply.TurnID, fallbackErr)
	}
	if fallbackErr != nil {
		te := agenterr.NewTurnError(reply.TurnID, fallbackErr)
		observability.RecordError(observability.PathFallback, te.Kind.String())
		observability.RecordTurn(OutcomeFailed)
		logger.Error().Str("detail", te.Detail()).Msg("Fallback path failed")
		return reply, te
	}

	observability.RecordTurn(OutcomeDegraded)
	reply.Result = result
	return reply, nil
}

// checkAnswer vets a final answer inside the runners, so a withheld answer
// is recorded as a failed outcome.
func (s *Service) checkAnswer(turnID string) func(string) error {
	if s.opts.Moderation == nil {
		return nil
	}
	return func(output string) error {
		if err := s.opts.Moderation.CheckResponse(output); err != nil {
			return agenterr.NewTurnErrorWithKind(turnID, agenterr.SafetyFilterError, err)
		}
		return nil
	}
}

// blocked ends a turn rejected by moderation. The fallback is never tried.
func (s *Service) blocked(ctx context.Context, turnID string, err error) error {
	observability.RecordError("moderation", agenterr.SafetyFilterError.String())
	observability.RecordTurn(OutcomeBlocked)
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Warn().Err(err).Msg("Turn blocked by moderation")
	return agenterr.NewTurnErrorWithKind(turnID, agenterr.SafetyFilterError, err)
}

// runPrimary runs the tool-calling path, retrying only kinds that can
// succeed on a second attempt.
func (s *Service) runPrimary(ctx context.Context, turn Turn, turnID, systemPrompt string) (agent.ExecutionResult, error) {
	cfg := s.opts.Agent
	cfg.UserID = turn.UserID
	cfg.CheckOutput = s.checkAnswer(turnID)

	runner, err := agent.NewRunner(agent.Config{
		Agent:    cfg,
		Recorder: s.opts.Recorder,
		Logger:   s.opts.Logger,
	})
	if err != nil {
		return agent.ExecutionResult{}, fmt.Errorf("create agent runner: %w", err)
	}

	in := agent.TurnInput{
		SystemPrompt: systemPrompt,
		History:      turn.History,
		Input:        turn.Input,
	}

	if !s.opts.RetryEnabled {
		return runner.Execute(ctx, in)
	}

	rcfg := s.opts.Retry
	logger := tracing.LoggerFromContext(ctx, s.logger)
	rcfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		observability.RecordRetry()
		logger.Info().
			Int("attempt", attempt).
			Dur("delay", delay).
			Err(err).
			Msg("Retrying primary path")
	}

	return retry.Do(ctx, rcfg, func(ctx context.Context) (agent.ExecutionResult, error) {
		res, err := runner.Execute(ctx, in)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil || !agenterr.Classify(err).Retryable() {
			return res, retry.Permanent(err)
		}
		return res, err
	})
}

func (s *Service) fallbackConfig(userID, turnID string) agent.FallbackConfig {
	cfg := s.opts.Fallback
	cfg.UserID = userID
	cfg.CheckOutput = s.checkAnswer(turnID)
	return cfg
}

// UserMessage returns the message to show for err: the fixed response of a
// TurnError, or the generic one.
func UserMessage(err error) string {
	var te *agenterr.TurnError
	if errors.As(err, &te) {
		return te.Response.UserMessage
	}
	return agenterr.UnknownError.Response().UserMessage
}
