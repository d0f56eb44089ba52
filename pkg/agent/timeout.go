package agent

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRequestTimeout marks a single model call that outlived its own deadline
// while the turn was still live.
var ErrRequestTimeout = errors.New("model request timeout")

// TimeoutProvider bounds each call to the wrapped provider.
type TimeoutProvider struct {
	next    LLMProvider
	timeout time.Duration
}

// NewTimeoutProvider wraps next so every call gets at most timeout. A
// non-positive timeout returns next as is.
func NewTimeoutProvider(next LLMProvider, timeout time.Duration) LLMProvider {
	if timeout <= 0 {
		return next
	}
	return &TimeoutProvider{next: next, timeout: timeout}
}

// Provider returns the wrapped provider's name.
func (p *TimeoutProvider) Provider() string {
	return p.next.Provider()
}

// Call forwards the request under a per-call deadline. When that deadline
// fires before the caller's, the error wraps both ErrRequestTimeout and
// context.DeadlineExceeded.
func (p *TimeoutProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	response, err := p.next.Call(callCtx, request)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %s: %w", ErrRequestTimeout, p.timeout, context.DeadlineExceeded)
	}
	return response, err
}
