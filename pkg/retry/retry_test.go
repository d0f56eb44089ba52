package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func TestDo(t *testing.T) {
	t.Run("always failing op runs max times then returns last error", func(t *testing.T) {
		rs := &recordingSleeper{}
		calls := 0
		boom := errors.New("boom")

		_, err := Do(context.Background(), Config{MaxRetries: 3, BaseDelay: time.Second, Sleep: rs.sleep},
			func(ctx context.Context) (int, error) {
				calls++
				return 0, boom
			})

		require.ErrorIs(t, err, boom)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rs.delays)
	})

	t.Run("succeeds on second attempt", func(t *testing.T) {
		rs := &recordingSleeper{}
		calls := 0

		got, err := Do(context.Background(), Config{MaxRetries: 3, BaseDelay: time.Second, Sleep: rs.sleep},
			func(ctx context.Context) (string, error) {
				calls++
				if calls < 2 {
					return "", errors.New("transient")
				}
				return "ok", nil
			})

		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, 2, calls)
		assert.Equal(t, []time.Duration{time.Second}, rs.delays)
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		rs := &recordingSleeper{}
		calls := 0
		denied := errors.New("invalid api key")

		_, err := Do(context.Background(), Config{MaxRetries: 5, BaseDelay: time.Millisecond, Sleep: rs.sleep},
			func(ctx context.Context) (int, error) {
				calls++
				return 0, Permanent(denied)
			})

		assert.Equal(t, denied, err)
		assert.False(t, IsPermanent(err))
		assert.Equal(t, 1, calls)
		assert.Empty(t, rs.delays)
	})

	t.Run("cancelled context aborts the wait", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		boom := errors.New("boom")

		_, err := Do(ctx, Config{MaxRetries: 3, BaseDelay: time.Hour},
			func(ctx context.Context) (int, error) {
				calls++
				cancel()
				return 0, boom
			})

		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("defaults apply to zero config", func(t *testing.T) {
		rs := &recordingSleeper{}
		calls := 0

		_, err := Do(context.Background(), Config{Sleep: rs.sleep},
			func(ctx context.Context) (int, error) {
				calls++
				return 0, errors.New("fail")
			})

		require.Error(t, err)
		assert.Equal(t, DefaultConfig().MaxRetries, calls)
	})

	t.Run("on retry hook sees each wait", func(t *testing.T) {
		var attempts []int
		cfg := Config{
			MaxRetries: 3,
			BaseDelay:  10 * time.Millisecond,
			Sleep:      (&recordingSleeper{}).sleep,
			OnRetry: func(attempt int, delay time.Duration, err error) {
				attempts = append(attempts, attempt)
			},
		}

		_, _ = Do(context.Background(), cfg, func(ctx context.Context) (int, error) {
			return 0, errors.New("fail")
		})

		assert.Equal(t, []int{1, 2}, attempts)
	})

	t.Run("real timer", func(t *testing.T) {
		calls := 0
		start := time.Now()

		_, err := Do(context.Background(), Config{MaxRetries: 2, BaseDelay: 5 * time.Millisecond},
			func(ctx context.Context) (int, error) {
				calls++
				return 0, errors.New("fail")
			})

		require.Error(t, err)
		assert.Equal(t, 2, calls)
		assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
	})
}

func TestDelay(t *testing.T) {
	assert.Equal(t, time.Second, Delay(time.Second, 0))
	assert.Equal(t, 2*time.Second, Delay(time.Second, 1))
	assert.Equal(t, 4*time.Second, Delay(time.Second, 2))
	assert.Equal(t, time.Duration(0), Delay(0, 5))
}

func TestDelayIsCapped(t *testing.T) {
	assert.Equal(t, MaxDelay, Delay(time.Second, 9))
	assert.Equal(t, MaxDelay, Delay(time.Second, 34))
	assert.Equal(t, MaxDelay, Delay(time.Second, 63))
	assert.Equal(t, MaxDelay, Delay(time.Second, 1000))
	assert.Equal(t, time.Hour, Delay(time.Hour, 3))

	for i := 0; i < 200; i++ {
		d := Delay(time.Millisecond, i)
		assert.Greater(t, d, time.Duration(0), "attempt %d", i)
		assert.LessOrEqual(t, d, MaxDelay, "attempt %d", i)
	}
}

func TestDoProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	noSleep := func(ctx context.Context, d time.Duration) error { return nil }

	properties.Property("failing op is attempted exactly max times", prop.ForAll(
		func(maxRetries int) bool {
			calls := 0
			_, err := Do(context.Background(), Config{MaxRetries: maxRetries, Sleep: noSleep},
				func(ctx context.Context) (int, error) {
					calls++
					return 0, errors.New("fail")
				})
			return err != nil && calls == maxRetries
		},
		gen.IntRange(1, 10),
	))

	properties.Property("op succeeding on attempt k runs k times", prop.ForAll(
		func(k int) bool {
			calls := 0
			got, err := Do(context.Background(), Config{MaxRetries: 10, Sleep: noSleep},
				func(ctx context.Context) (int, error) {
					calls++
					if calls < k {
						return 0, errors.New("fail")
					}
					return calls, nil
				})
			return err == nil && got == k && calls == k
		},
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}
