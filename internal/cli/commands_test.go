package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/harun/fitcoach/pkg/agent/agenttest"
	"github.com/harun/fitcoach/pkg/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAskCommand(t *testing.T) {
	provider := agenttest.NewProvider(agenttest.Reply("Do 4 sets of squats."))
	path := setup(t, provider)

	planFile := filepath.Join(t.TempDir(), "workout.txt")
	require.NoError(t, os.WriteFile(planFile, []byte("Monday: leg day"), 0644))

	out, _, err := execute(t, "", "--config", path, "ask", "--workout", "@"+planFile, "How", "many", "sets?")
	require.NoError(t, err)

	assert.Equal(t, "Do 4 sets of squats.\n", out)
	assert.Contains(t, provider.Requests()[0].SystemPrompt, "Monday: leg day")
}

func TestAskCommandJSONDegraded(t *testing.T) {
	provider := agenttest.NewProvider(
		agenttest.FailWith("429 rate limit"),
		agenttest.Reply("General advice."),
	)
	path := setup(t, provider)

	out, _, err := execute(t, "", "--config", path, "ask", "--json", "What now?")
	require.NoError(t, err)

	var got askOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Degraded)
	assert.Equal(t, "General advice.", got.Output)
	assert.Equal(t, "ApiRateLimit", got.Kind)
	assert.Nil(t, got.Error)
}

func TestAskCommandFailure(t *testing.T) {
	provider := agenttest.NewProvider(
		agenttest.FailWith("function call rejected"),
		agenttest.FailWith("blocked by safety filter"),
	)
	path := setup(t, provider)

	out, _, err := execute(t, "", "--config", path, "--log-level", "error", "ask", "hi")
	require.Error(t, err)
	assert.Contains(t, out, "I can't help with that request.")
	assert.NotContains(t, out, "safety filter")
}

func TestAskRequiresQuestion(t *testing.T) {
	_, _, err := execute(t, "", "ask")
	assert.Error(t, err)
}

func TestChatCommand(t *testing.T) {
	provider := agenttest.NewProvider(
		agenttest.Reply("Keep your back straight."),
		agenttest.Reply("Three times a week."),
	)
	path := setup(t, provider)

	stdin := "How do I squat?\n\nHow often?\n/stats\n/quit\n"
	out, stderr, err := execute(t, stdin, "--config", path, "chat")
	require.NoError(t, err)

	assert.Contains(t, out, "Keep your back straight.")
	assert.Contains(t, out, "Three times a week.")
	assert.Contains(t, out, `"total_requests": 2`)
	assert.Contains(t, stderr, "total_requests")

	reqs := provider.Requests()
	require.Len(t, reqs, 2)
	// second turn carries the first exchange as history
	assert.Len(t, reqs[1].Messages, 3)
}

func TestMetricsCommand(t *testing.T) {
	provider := agenttest.NewProvider(agenttest.Reply("ok"))
	path := setup(t, provider)

	bench := filepath.Join(t.TempDir(), "bench.json")
	require.NoError(t, os.WriteFile(bench, []byte(`[
		{"user_id": "u1", "input": "leg day?", "context": {"workout": "Mon: legs"}},
		{"user_id": "u2", "input": "protein?"}
	]`), 0644))

	out, _, err := execute(t, "", "--config", path, "metrics", bench)
	require.NoError(t, err)

	var snap stats.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, int64(2), snap.TotalRequests)
	assert.Equal(t, 1.0, snap.SuccessRate)
}

func TestMetricsCommandBadFile(t *testing.T) {
	bench := filepath.Join(t.TempDir(), "bench.json")
	require.NoError(t, os.WriteFile(bench, []byte(`[]`), 0644))

	_, _, err := execute(t, "", "metrics", bench)
	assert.ErrorContains(t, err, "no turns")
}

func TestConfigCommands(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("FITCOACH_ANTHROPIC_API_KEY", "")
	path := filepath.Join(t.TempDir(), "fitcoach.json")

	out, _, err := execute(t, "", "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	_, _, err = execute(t, "", "--config", path, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	_, _, err = execute(t, "", "--config", path, "config", "init", "--force")
	require.NoError(t, err)

	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-very-secret")
	out, _, err = execute(t, "", "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `"provider": "anthropic"`)
	assert.NotContains(t, out, "very-secret")
}
