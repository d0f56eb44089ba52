// Package retry runs a fallible operation with bounded attempts and
// exponential backoff.
//
// The executor knows nothing about error kinds. Callers decide up front
// whether retrying is appropriate and can stop early by returning an error
// wrapped with Permanent.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Config configures retry behavior.
type Config struct {
	// MaxRetries is the total number of attempts, including the first one.
	MaxRetries int
	// BaseDelay is the wait before the second attempt. It doubles after each
	// failure.
	BaseDelay time.Duration
	// OnRetry, when set, is called before each backoff wait.
	OnRetry func(attempt int, delay time.Duration, err error)
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns three attempts starting at a one second delay.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  time.Second,
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so Do returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// MaxDelay caps a single backoff wait.
const MaxDelay = 5 * time.Minute

// Delay returns the backoff before the attempt following attemptIndex
// (zero-based): base * 2^attemptIndex, capped at MaxDelay. A base above
// MaxDelay is returned unchanged.
func Delay(base time.Duration, attemptIndex int) time.Duration {
	if base <= 0 {
		return 0
	}
	if base >= MaxDelay {
		return base
	}
	d := base
	for i := 0; i < attemptIndex; i++ {
		if d >= MaxDelay/2 {
			return MaxDelay
		}
		d *= 2
	}
	return d
}

// Do calls op until it succeeds or MaxRetries attempts have failed, sleeping
// BaseDelay * 2^attempt between attempts. The last attempt's error is
// returned unchanged; a Permanent error is unwrapped and returned at once.
func Do[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = 0
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var zero T
	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		var pe *permanentError
		if errors.As(err, &pe) {
			return zero, pe.err
		}

		if attempt == cfg.MaxRetries-1 {
			return zero, err
		}

		delay := Delay(cfg.BaseDelay, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, delay, err)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return zero, fmt.Errorf("retry aborted after attempt %d: %w", attempt+1, errors.Join(serr, err))
		}
	}

	return zero, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
