package agent_test

import (
	"context"
	"testing"
	"time"

	"github.com/harun/fitcoach/pkg/agent"
	"github.com/harun/fitcoach/pkg/agent/agenttest"
	"github.com/harun/fitcoach/pkg/agenterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitedProviderDisabled(t *testing.T) {
	inner := agenttest.NewProvider(agenttest.Reply("ok"))
	assert.Same(t, inner, agent.NewRateLimitedProvider(inner, 0, 5))
}

func TestRateLimitedProvider(t *testing.T) {
	inner := agenttest.NewProvider(agenttest.Reply("ok"))
	limited := agent.NewRateLimitedProvider(inner, 0.001, 1)
	assert.Equal(t, "scripted", limited.Provider())

	resp, err := limited.Call(context.Background(), agent.LLMRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)

	// the bucket is empty and the next token is far beyond the deadline
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = limited.Call(ctx, agent.LLMRequest{})
	require.ErrorIs(t, err, agent.ErrRateLimited)
	assert.Equal(t, agenterr.APIRateLimit, agenterr.Classify(err))
	assert.Equal(t, 1, inner.Calls())
}

func TestRateLimitedProviderCancelled(t *testing.T) {
	inner := agenttest.NewProvider(agenttest.Reply("ok"))
	limited := agent.NewRateLimitedProvider(inner, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := limited.Call(ctx, agent.LLMRequest{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, inner.Calls())
}
