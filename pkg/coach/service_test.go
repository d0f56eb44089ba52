package coach

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/harun/fitcoach/pkg/agent"
	"github.com/harun/fitcoach/pkg/agent/agenttest"
	"github.com/harun/fitcoach/pkg/agenterr"
	"github.com/harun/fitcoach/pkg/coachctx"
	"github.com/harun/fitcoach/pkg/moderation"
	"github.com/harun/fitcoach/pkg/retry"
	"github.com/harun/fitcoach/pkg/tools"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, provider agent.LLMProvider, retryEnabled bool) *Service {
	t.Helper()
	cfg := agent.DefaultAgentConfig()
	cfg.Provider = provider
	cfg.Tools = tools.Builtins()

	svc, err := New(Options{
		Agent:        cfg,
		RetryEnabled: retryEnabled,
		Retry: retry.Config{
			MaxRetries: 3,
			BaseDelay:  time.Millisecond,
			Sleep:      func(ctx context.Context, d time.Duration) error { return ctx.Err() },
		},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	return svc
}

var bundle = coachctx.Bundle{
	Profile: "Age 31, goal: strength",
	Diet:    "High protein, 2400 kcal",
	Workout: "Monday: leg day with squats",
}

func TestNewRequiresProvider(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, agent.ErrNoProvider)
}

func TestRespondPrimary(t *testing.T) {
	provider := agenttest.NewProvider(agenttest.Reply("Squat 5x5 today."))
	svc := newService(t, provider, true)

	reply, err := svc.Respond(context.Background(), Turn{
		UserID:       "user-1",
		Input:        "What should I do on leg day?",
		SystemPrompt: "You are a fitness coach.",
		Context:      bundle,
	})
	require.NoError(t, err)

	assert.Equal(t, "Squat 5x5 today.", reply.Result.Output)
	assert.False(t, reply.Result.Degraded)
	assert.True(t, strings.HasPrefix(reply.TurnID, "turn_"))

	prompt := provider.Requests()[0].SystemPrompt
	assert.Contains(t, prompt, "You are a fitness coach.")
	assert.Contains(t, prompt, "# User context")
	// the workout block ranks first for a leg day question
	assert.Less(t, strings.Index(prompt, "leg day with squats"), strings.Index(prompt, "Age 31"))
	assert.Contains(t, prompt, "user_id: user-1")

	snap := svc.Stats()
	assert.Equal(t, int64(1), snap.TotalRequests)
	assert.Equal(t, 0.0, snap.FallbackRate)
}

func TestRespondToolReadsTurnContext(t *testing.T) {
	provider := agenttest.NewProvider(
		agenttest.CallTools(agent.ToolCall{ID: "c1", Name: "get_context_block", Parameters: map[string]interface{}{"block": "diet"}}),
		agenttest.Reply("Keep protein high."),
	)
	svc := newService(t, provider, false)

	reply, err := svc.Respond(context.Background(), Turn{Input: "diet?", Context: bundle})
	require.NoError(t, err)

	require.Len(t, reply.Result.ToolTrace, 1)
	assert.Equal(t, bundle.Diet, reply.Result.ToolTrace[0].Output)
	assert.Equal(t, int64(1), svc.Stats().ToolUsageFrequency["get_context_block"])
}

func TestRespondFallsBackOnToolFailure(t *testing.T) {
	provider := agenttest.NewProvider(
		agenttest.CallTools(agent.ToolCall{ID: "c1", Name: "get_sleep_log"}),
		agenttest.Reply("Here is a general answer."),
	)
	svc := newService(t, provider, false)

	reply, err := svc.Respond(context.Background(), Turn{Input: "How did I sleep?", Context: bundle})
	require.NoError(t, err)

	assert.True(t, reply.Result.Degraded)
	assert.Equal(t, "Here is a general answer.", reply.Result.Output)
	assert.Equal(t, agenterr.ToolCallingError, reply.Kind)

	reqs := provider.Requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[1].Tools)
	assert.Contains(t, reqs[1].SystemPrompt, "Tools are unavailable")

	snap := svc.Stats()
	assert.Greater(t, snap.FallbackRate, 0.0)
	assert.Equal(t, int64(1), snap.FallbackInvocations)
	assert.Equal(t, int64(2), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.SuccessfulRequests)
}

func TestRespondRetriesRetryableKinds(t *testing.T) {
	provider := agenttest.NewProvider(
		agenttest.FailWith("socket timeout"),
		agenttest.Reply("Second time lucky."),
	)
	svc := newService(t, provider, true)

	reply, err := svc.Respond(context.Background(), Turn{Input: "hi"})
	require.NoError(t, err)

	assert.Equal(t, "Second time lucky.", reply.Result.Output)
	assert.False(t, reply.Result.Degraded)
	assert.Equal(t, 2, provider.Calls())

	snap := svc.Stats()
	assert.Equal(t, int64(2), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.SuccessfulRequests)
	assert.Equal(t, int64(0), snap.FallbackInvocations)
}

func TestRespondDoesNotRetryRateLimit(t *testing.T) {
	provider := agenttest.NewProvider(
		agenttest.FailWith("429 rate limit exceeded"),
		agenttest.Reply("Degraded answer."),
	)
	svc := newService(t, provider, true)

	reply, err := svc.Respond(context.Background(), Turn{Input: "hi"})
	require.NoError(t, err)

	assert.Equal(t, 2, provider.Calls())
	assert.True(t, reply.Result.Degraded)
	assert.Equal(t, agenterr.APIRateLimit, reply.Kind)
}

func TestRespondRetryExhaustionFallsBack(t *testing.T) {
	provider := agenttest.NewProvider(
		agenttest.FailWith("database unavailable"),
		agenttest.FailWith("database unavailable"),
		agenttest.FailWith("database unavailable"),
		agenttest.Reply("Degraded answer."),
	)
	svc := newService(t, provider, true)

	reply, err := svc.Respond(context.Background(), Turn{Input: "hi"})
	require.NoError(t, err)

	assert.Equal(t, 4, provider.Calls())
	assert.True(t, reply.Result.Degraded)
	assert.Equal(t, agenterr.MemoryError, reply.Kind)
}

func TestRespondBothPathsFail(t *testing.T) {
	provider := agenttest.NewProvider(
		agenttest.FailWith("function schema rejected"),
		agenttest.FailWith("invalid api key sk-secret-123"),
	)
	svc := newService(t, provider, false)

	reply, err := svc.Respond(context.Background(), Turn{Input: "hi"})
	require.Error(t, err)

	var te *agenterr.TurnError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, agenterr.AuthenticationError, te.Kind)
	assert.Equal(t, reply.TurnID, te.TurnID)
	assert.NotContains(t, err.Error(), "sk-secret")
	assert.Equal(t, agenterr.AuthenticationError.Response().UserMessage, UserMessage(err))
	assert.Equal(t, agenterr.ToolCallingError, reply.Kind)

	snap := svc.Stats()
	assert.Equal(t, int64(0), snap.SuccessfulRequests)
	assert.Equal(t, int64(1), snap.FallbackInvocations)
}

func TestRespondCancelledSkipsFallback(t *testing.T) {
	provider := agenttest.NewProvider(agenttest.Reply("never"))
	svc := newService(t, provider, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Respond(ctx, Turn{Input: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, provider.Calls())

	snap := svc.Stats()
	assert.Equal(t, int64(1), snap.TotalRequests)
	assert.Equal(t, int64(0), snap.FallbackInvocations)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, agenterr.UnknownError.Response().UserMessage, UserMessage(errors.New("raw")))
}

func TestRespondModeration(t *testing.T) {
	filter, err := moderation.New(moderation.Config{
		Enabled:         true,
		BlockedKeywords: []string{"steroid", "tool abuse"},
	})
	require.NoError(t, err)

	newModerated := func(provider agent.LLMProvider) *Service {
		cfg := agent.DefaultAgentConfig()
		cfg.Provider = provider
		svc, err := New(Options{Agent: cfg, Moderation: filter, Logger: zerolog.Nop()})
		require.NoError(t, err)
		return svc
	}

	t.Run("blocked question never reaches the model", func(t *testing.T) {
		provider := agenttest.NewProvider(agenttest.Reply("never"))
		svc := newModerated(provider)

		_, err := svc.Respond(context.Background(), Turn{Input: "Design a steroid plan"})
		var te *agenterr.TurnError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, agenterr.SafetyFilterError, te.Kind)
		assert.ErrorIs(t, err, moderation.ErrBlocked)
		assert.Equal(t, 0, provider.Calls())
	})

	t.Run("blocked answer is withheld", func(t *testing.T) {
		provider := agenttest.NewProvider(agenttest.Reply("Consider tool abuse"))
		svc := newModerated(provider)

		reply, err := svc.Respond(context.Background(), Turn{Input: "Any tips?"})
		var te *agenterr.TurnError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, agenterr.SafetyFilterError, te.Kind)
		assert.ErrorIs(t, err, moderation.ErrBlocked)
		assert.Empty(t, reply.Result.Output)
		assert.Equal(t, 1, provider.Calls())

		snap := svc.Stats()
		assert.Equal(t, int64(1), snap.TotalRequests)
		assert.Equal(t, int64(0), snap.SuccessfulRequests)
		assert.Equal(t, int64(0), snap.FallbackInvocations)
		assert.Equal(t, 0.0, snap.SuccessRate)
	})

	t.Run("blocked degraded answer is a failure", func(t *testing.T) {
		provider := agenttest.NewProvider(
			agenttest.FailWith("function schema rejected"),
			agenttest.Reply("Try some tool abuse"),
		)
		svc := newModerated(provider)

		reply, err := svc.Respond(context.Background(), Turn{Input: "Any tips?"})
		var te *agenterr.TurnError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, agenterr.SafetyFilterError, te.Kind)
		assert.Empty(t, reply.Result.Output)
		assert.Equal(t, 2, provider.Calls())

		snap := svc.Stats()
		assert.Equal(t, int64(2), snap.TotalRequests)
		assert.Equal(t, int64(0), snap.SuccessfulRequests)
		assert.Equal(t, int64(1), snap.FallbackInvocations)
	})

	t.Run("clean answer passes", func(t *testing.T) {
		provider := agenttest.NewProvider(agenttest.Reply("Sleep eight hours."))
		svc := newModerated(provider)

		reply, err := svc.Respond(context.Background(), Turn{Input: "Any tips?"})
		require.NoError(t, err)
		assert.Equal(t, "Sleep eight hours.", reply.Result.Output)
		assert.Equal(t, int64(1), svc.Stats().SuccessfulRequests)
	})
}

func TestRespondSlowModelCallDegrades(t *testing.T) {
	newSlow := func(t *testing.T, retryEnabled bool) (*Service, *agenttest.Provider, *agenttest.Provider) {
		primary := agenttest.NewProvider(agenttest.Hang())
		secondary := agenttest.NewProvider(agenttest.Reply("Rest today, train tomorrow."))

		cfg := agent.DefaultAgentConfig()
		cfg.Provider = agent.NewTimeoutProvider(primary, 20*time.Millisecond)
		svc, err := New(Options{
			Agent:        cfg,
			Fallback:     agent.FallbackConfig{Provider: agent.NewTimeoutProvider(secondary, time.Second)},
			RetryEnabled: retryEnabled,
			Retry: retry.Config{
				MaxRetries: 2,
				BaseDelay:  time.Millisecond,
			},
			Logger: zerolog.Nop(),
		})
		require.NoError(t, err)
		return svc, primary, secondary
	}

	t.Run("without retry", func(t *testing.T) {
		svc, primary, secondary := newSlow(t, false)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		reply, err := svc.Respond(ctx, Turn{Input: "Should I train today?"})
		require.NoError(t, err)
		assert.True(t, reply.Result.Degraded)
		assert.Equal(t, agenterr.TimeoutError, reply.Kind)
		assert.Equal(t, "Rest today, train tomorrow.", reply.Result.Output)
		assert.Equal(t, 1, primary.Calls())
		assert.Equal(t, 1, secondary.Calls())
		assert.Equal(t, int64(1), svc.Stats().FallbackInvocations)
	})

	t.Run("timeouts are retried before falling back", func(t *testing.T) {
		svc, primary, secondary := newSlow(t, true)

		reply, err := svc.Respond(context.Background(), Turn{Input: "Should I train today?"})
		require.NoError(t, err)
		assert.True(t, reply.Result.Degraded)
		assert.Equal(t, agenterr.TimeoutError, reply.Kind)
		assert.Equal(t, 2, primary.Calls())
		assert.Equal(t, 1, secondary.Calls())
	})
}
