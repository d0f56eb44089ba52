package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harun/fitcoach/internal/observability"
	"github.com/harun/fitcoach/internal/tracing"
	"github.com/harun/fitcoach/pkg/stats"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Runner executes the primary, tool-calling path of a turn.
type Runner struct {
	cfg      AgentConfig
	tools    map[string]Tool
	specs    []ToolSpec
	recorder *stats.Recorder
	logger   zerolog.Logger
}

// Config holds runner configuration
type Config struct {
	Agent    AgentConfig
	Recorder *stats.Recorder
	Logger   zerolog.Logger
}

// TurnInput is what the caller supplies for one primary run.
type TurnInput struct {
	SystemPrompt string
	History      []Message
	Input        string
}

// NewRunner creates a new agent runner
func NewRunner(cfg Config) (*Runner, error) {
	observability.EnsureRegistered()

	if cfg.Agent.Provider == nil {
		return nil, ErrNoProvider
	}
	if cfg.Recorder == nil {
		return nil, fmt.Errorf("stats recorder is required")
	}
	if cfg.Agent.MaxIterations <= 0 {
		cfg.Agent.MaxIterations = DefaultMaxIterations
	}

	tools := make(map[string]Tool, len(cfg.Agent.Tools))
	for _, t := range cfg.Agent.Tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tool name cannot be empty")
		}
		if t.Invoke == nil {
			return nil, fmt.Errorf("tool %s has no invoke function", t.Name)
		}
		if _, dup := tools[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tool: %s", t.Name)
		}
		tools[t.Name] = t
	}

	return &Runner{
		cfg:      cfg.Agent,
		tools:    tools,
		specs:    toolSpecs(cfg.Agent.Tools),
		recorder: cfg.Recorder,
		logger:   cfg.Logger.With().Str("component", "agent_runner").Logger(),
	}, nil
}

// Execute runs the tool loop until the model answers without calling a tool
// or the iteration cap is reached. Errors from the provider or the loop are
// returned as is; the outcome is recorded either way.
func (r *Runner) Execute(ctx context.Context, in TurnInput) (result ExecutionResult, err error) {
	start := time.Now()
	ctx = tracing.WithPath(ctx, observability.PathPrimary)
	ctx, span := tracing.StartSpan(ctx, "agent.execute",
		attribute.String("provider", r.cfg.Provider.Provider()),
		attribute.Int("tools", len(r.specs)),
	)
	logger := tracing.LoggerFromContext(ctx, r.logger)

	defer func() {
		elapsed := time.Since(start)
		r.recorder.RecordOutcome(err == nil, elapsed, result.ToolNames()...)
		observability.RecordAgentRun(observability.PathPrimary, elapsed, err == nil)
		observability.RecordIterations(result.Iterations)
		span.SetAttributes(attribute.Int("iterations", result.Iterations))
		tracing.EndSpan(span, err)

		if err != nil {
			logger.Warn().Err(err).
				Dur("elapsed", elapsed).
				Int("iterations", result.Iterations).
				Msg("Agent run failed")
			return
		}
		logger.Info().
			Dur("elapsed", elapsed).
			Int("iterations", result.Iterations).
			Int("tool_calls", len(result.ToolTrace)).
			Msg("Agent run completed")
	}()

	systemPrompt := PromptBuilder{
		Base:   in.SystemPrompt,
		UserID: r.cfg.UserID,
		Tools:  r.specs,
	}.Build()
	messages := buildMessages(in.History, in.Input)

	for iter := 1; iter <= r.cfg.MaxIterations; iter++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, fmt.Errorf("agent run aborted: %w", ctxErr)
		}
		result.Iterations = iter

		response, callErr := r.cfg.Provider.Call(ctx, LLMRequest{
			Model:        r.cfg.Model,
			Messages:     messages,
			Tools:        r.specs,
			Temperature:  r.cfg.Temperature,
			MaxTokens:    r.cfg.MaxTokens,
			SystemPrompt: systemPrompt,
		})
		if callErr != nil {
			return result, fmt.Errorf("agent model call: %w", callErr)
		}
		result.Usage = result.Usage.add(response.Usage)

		if len(response.ToolCalls) == 0 {
			if r.cfg.CheckOutput != nil {
				if checkErr := r.cfg.CheckOutput(response.Content); checkErr != nil {
					return result, checkErr
				}
			}
			result.Output = response.Content
			return result, nil
		}

		logger.Debug().Int("iteration", iter).Int("tool_calls", len(response.ToolCalls)).Msg("Model requested tools")

		messages = append(messages, Message{
			Role:      RoleAssistant,
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		for _, call := range response.ToolCalls {
			entry, toolErr := r.invokeTool(ctx, call)
			if toolErr != nil {
				return result, toolErr
			}
			result.ToolTrace = append(result.ToolTrace, entry)

			observation := entry.Output
			if entry.Error != "" {
				observation = "error: " + entry.Error
			}
			messages = append(messages, Message{
				Role:       RoleTool,
				Content:    observation,
				ToolCallID: call.ID,
			})
		}
	}

	return result, fmt.Errorf("%w (%d)", ErrMaxIterations, r.cfg.MaxIterations)
}

// invokeTool runs one requested tool. A tool's own failure becomes part of
// the trace and is fed back to the model; only an unknown tool fails the run.
func (r *Runner) invokeTool(ctx context.Context, call ToolCall) (entry ToolTraceEntry, err error) {
	tool, ok := r.tools[call.Name]
	if !ok {
		observability.RecordToolCall(call.Name, false)
		return ToolTraceEntry{}, fmt.Errorf("%w: %s", ErrToolNotFound, call.Name)
	}

	input, mErr := json.Marshal(call.Parameters)
	if mErr != nil {
		input = []byte("{}")
	}
	entry = ToolTraceEntry{ToolName: call.Name, Input: string(input)}

	output, invokeErr := safeInvoke(ctx, tool, call.Parameters)
	if invokeErr != nil {
		entry.Error = invokeErr.Error()
		logger := tracing.LoggerFromContext(ctx, r.logger)
		logger.Warn().
			Str("tool", call.Name).
			Err(invokeErr).
			Msg("Tool returned an error")
	}
	entry.Output = output
	observability.RecordToolCall(call.Name, invokeErr == nil)

	return entry, nil
}

func safeInvoke(ctx context.Context, tool Tool, args map[string]interface{}) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tool %s panicked: %v", tool.Name, p)
		}
	}()
	if args == nil {
		args = map[string]interface{}{}
	}
	return tool.Invoke(ctx, args)
}
