package agent_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/harun/fitcoach/pkg/agent"
	"github.com/harun/fitcoach/pkg/agent/agenttest"
	"github.com/harun/fitcoach/pkg/coachctx"
	"github.com/harun/fitcoach/pkg/stats"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFallback(t *testing.T, provider agent.LLMProvider, recorder *stats.Recorder) *agent.FallbackRunner {
	t.Helper()
	fb, err := agent.NewFallbackRunner(agent.FallbackConfig{
		Provider: provider,
		UserID:   "user-42",
		Recorder: recorder,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return fb
}

func TestNewFallbackRunnerValidation(t *testing.T) {
	_, err := agent.NewFallbackRunner(agent.FallbackConfig{Recorder: stats.NewRecorder()})
	assert.ErrorIs(t, err, agent.ErrNoProvider)

	_, err = agent.NewFallbackRunner(agent.FallbackConfig{Provider: agenttest.NewProvider()})
	assert.Error(t, err)
}

func TestFallbackExecute(t *testing.T) {
	provider := agenttest.NewProvider(agenttest.Reply("Eat protein after training."))
	recorder := stats.NewRecorder()
	fb := newFallback(t, provider, recorder)

	result, err := fb.Execute(context.Background(), agent.FallbackInput{
		Input:        "What should I eat after the gym?",
		SystemPrompt: "You are a fitness coach.",
		Context: coachctx.Bundle{
			Profile: "Goal: muscle gain",
			Diet:    "Post-workout: whey shake and rice",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Eat protein after training.", result.Output)
	assert.True(t, result.Degraded)
	assert.NotNil(t, result.ToolTrace)
	assert.Empty(t, result.ToolTrace)

	reqs := provider.Requests()
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].Tools)
	assert.Contains(t, reqs[0].SystemPrompt, "Tools are unavailable")
	assert.Contains(t, reqs[0].SystemPrompt, "Goal: muscle gain")
	assert.Contains(t, reqs[0].SystemPrompt, "whey shake")

	snap := recorder.Snapshot()
	assert.Equal(t, int64(1), snap.FallbackInvocations)
	assert.Equal(t, int64(1), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.SuccessfulRequests)
}

func TestFallbackFailure(t *testing.T) {
	provider := agenttest.NewProvider(agenttest.FailWith("invalid api key"))
	recorder := stats.NewRecorder()
	fb := newFallback(t, provider, recorder)

	result, err := fb.Execute(context.Background(), agent.FallbackInput{Input: "hi"})
	require.Error(t, err)
	assert.True(t, result.Degraded)
	assert.Contains(t, err.Error(), "invalid api key")

	snap := recorder.Snapshot()
	assert.Equal(t, int64(1), snap.FallbackInvocations)
	assert.Equal(t, int64(0), snap.SuccessfulRequests)
}

func TestFallbackBudgets(t *testing.T) {
	fb := newFallback(t, agenttest.NewProvider(), stats.NewRecorder())

	profile := strings.Repeat("p", 3000)
	diet := strings.Repeat("d", 3000)
	workout := "squat squat squat " + strings.Repeat("w", 3000)
	progress := strings.Repeat("g", 3000)

	prompt := fb.BuildPrompt("base prompt", coachctx.Bundle{
		Profile:  profile,
		Diet:     diet,
		Workout:  workout,
		Progress: progress,
	}, "how many squat sets")

	assert.Contains(t, prompt, coachctx.Compress(profile, agent.DefaultPrimaryBudget))
	assert.Contains(t, prompt, coachctx.Compress(workout, agent.DefaultPrimaryBudget))
	assert.Contains(t, prompt, coachctx.Compress(diet, agent.DefaultSecondaryBudget))
	assert.Contains(t, prompt, coachctx.Compress(progress, agent.DefaultSecondaryBudget))
	assert.Equal(t, 4, strings.Count(prompt, coachctx.TruncationMarker))

	// the most relevant block comes first after the profile
	assert.Less(t, strings.Index(prompt, "# Workout plan"), strings.Index(prompt, "# Diet plan"))
}

func TestFallbackCompressesBasePrompt(t *testing.T) {
	fb := newFallback(t, agenttest.NewProvider(), stats.NewRecorder())

	base := strings.Repeat("x", 5000)
	prompt := fb.BuildPrompt(base, coachctx.Bundle{}, "")

	assert.Contains(t, prompt, coachctx.Compress(base, agent.DefaultPromptBudget))
	assert.NotContains(t, prompt, base)
}

func TestFallbackHistory(t *testing.T) {
	provider := agenttest.NewProvider(agenttest.Reply("ok"))
	fb := newFallback(t, provider, stats.NewRecorder())

	history := []agent.Message{
		{Role: agent.RoleUser, Content: "plan?"},
		{Role: agent.RoleAssistant, ToolCalls: []agent.ToolCall{{ID: "c1", Name: "get_diet_plan"}}},
		{Role: agent.RoleTool, Content: "diet...", ToolCallID: "c1"},
	}
	for i := 0; i < 20; i++ {
		history = append(history, agent.Message{Role: agent.RoleUser, Content: "msg"})
	}

	_, err := fb.Execute(context.Background(), agent.FallbackInput{Input: "now", History: history})
	require.NoError(t, err)

	msgs := provider.Requests()[0].Messages
	require.Len(t, msgs, agent.DefaultHistoryLimit+1)
	for _, m := range msgs {
		assert.NotEqual(t, agent.RoleTool, m.Role)
		assert.Empty(t, m.ToolCalls)
	}
}

func TestFallbackRejectedAnswer(t *testing.T) {
	errRejected := errors.New("answer rejected")
	recorder := stats.NewRecorder()
	fb, err := agent.NewFallbackRunner(agent.FallbackConfig{
		Provider:    agenttest.NewProvider(agenttest.Reply("unsafe")),
		Recorder:    recorder,
		Logger:      zerolog.Nop(),
		CheckOutput: func(string) error { return errRejected },
	})
	require.NoError(t, err)

	result, err := fb.Execute(context.Background(), agent.FallbackInput{Input: "tips?"})
	assert.ErrorIs(t, err, errRejected)
	assert.Empty(t, result.Output)
	assert.True(t, result.Degraded)

	snap := recorder.Snapshot()
	assert.Equal(t, int64(1), snap.TotalRequests)
	assert.Equal(t, int64(0), snap.SuccessfulRequests)
	assert.Equal(t, int64(1), snap.FallbackInvocations)
}
