package agent

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when no token would become available before the
// caller's deadline.
var ErrRateLimited = errors.New("rate limit: no request slot before deadline")

// RateLimitedProvider throttles calls to the wrapped provider with a token
// bucket. Callers block until a token is available or their context ends.
type RateLimitedProvider struct {
	next    LLMProvider
	limiter *rate.Limiter
}

// NewRateLimitedProvider wraps next with a limiter allowing qps calls per
// second and bursts of burst calls. A non-positive qps returns next as is.
func NewRateLimitedProvider(next LLMProvider, qps float64, burst int) LLMProvider {
	if qps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedProvider{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(qps), burst),
	}
}

// Provider returns the wrapped provider's name.
func (p *RateLimitedProvider) Provider() string {
	return p.next.Provider()
}

// Call waits for a token and forwards the request.
func (p *RateLimitedProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("rate limiter: %w", ctxErr)
		}
		return nil, ErrRateLimited
	}
	return p.next.Call(ctx, request)
}
