// Package agenttest provides a scripted LLM provider for tests.
package agenttest

import (
	"context"
	"errors"
	"sync"

	"github.com/harun/fitcoach/pkg/agent"
)

// Step is one scripted reply: a response, an error, or a hang.
type Step struct {
	Response *agent.LLMResponse
	Err      error
	// Hang blocks the call until its context is done.
	Hang bool
}

// Provider replays scripted steps in order and records every request.
// When the script runs out it keeps returning the last step.
type Provider struct {
	Name string

	mu       sync.Mutex
	steps    []Step
	requests []agent.LLMRequest
}

// NewProvider creates a provider that replays steps.
func NewProvider(steps ...Step) *Provider {
	return &Provider{Name: "scripted", steps: steps}
}

// Reply is a step answering with plain text.
func Reply(content string) Step {
	return Step{Response: &agent.LLMResponse{
		Content: content,
		Usage:   &agent.TokenUsage{InputTokens: 10, OutputTokens: 5},
	}}
}

// CallTools is a step requesting the given tool calls.
func CallTools(calls ...agent.ToolCall) Step {
	return Step{Response: &agent.LLMResponse{ToolCalls: calls}}
}

// Fail is a step returning err.
func Fail(err error) Step {
	return Step{Err: err}
}

// FailWith is a step returning an error with the given message.
func FailWith(msg string) Step {
	return Step{Err: errors.New(msg)}
}

// Hang is a step that never answers; the call returns once ctx is done.
func Hang() Step {
	return Step{Hang: true}
}

func (p *Provider) next(request agent.LLMRequest) (Step, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, request)
	if len(p.steps) == 0 {
		return Step{}, false
	}
	idx := len(p.requests) - 1
	if idx >= len(p.steps) {
		idx = len(p.steps) - 1
	}
	return p.steps[idx], true
}

// Call implements agent.LLMProvider.
func (p *Provider) Call(ctx context.Context, request agent.LLMRequest) (*agent.LLMResponse, error) {
	step, ok := p.next(request)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("scripted provider has no steps")
	}

	if step.Hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Response, nil
}

// Provider implements agent.LLMProvider.
func (p *Provider) Provider() string {
	if p.Name == "" {
		return "scripted"
	}
	return p.Name
}

// Requests returns a copy of every request received so far.
func (p *Provider) Requests() []agent.LLMRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]agent.LLMRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// Calls returns the number of requests received so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}
