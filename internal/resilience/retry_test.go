package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
}

func TestDo_SucceedsAfterTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("deadlock"), "40P01")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_NonTransientNotRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return errors.New("syntax error")
	})
	require.EqualError(t, err, "syntax error")
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return NewTransientError(errors.New("busy"), "")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelledStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastConfig(), func(context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("busy"), "")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_CustomShouldRetryAndOnRetry(t *testing.T) {
	cfg := fastConfig()
	cfg.ShouldRetry = func(error) bool { return true }
	var attempts []int
	cfg.OnRetry = func(attempt int, _ error) { attempts = append(attempts, attempt) }

	err := Do(context.Background(), cfg, func(context.Context) error {
		return errors.New("plain")
	})
	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDoVal(t *testing.T) {
	calls := 0
	n, err := DoVal(context.Background(), fastConfig(), func(context.Context) (int64, error) {
		calls++
		if calls == 1 {
			return 7, NewTransientError(errors.New("conn closed"), "")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	n, err = DoVal(context.Background(), fastConfig(), func(context.Context) (int64, error) {
		return 7, errors.New("fatal")
	})
	require.Error(t, err)
	assert.Zero(t, n)
}

func TestWithDefaults(t *testing.T) {
	cfg := RetryConfig{JitterFraction: -1}.withDefaults()
	def := DefaultRetryConfig()
	assert.Equal(t, def.MaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, def.InitialBackoff, cfg.InitialBackoff)
	assert.Equal(t, def.MaxBackoff, cfg.MaxBackoff)
	assert.InDelta(t, def.Multiplier, cfg.Multiplier, 0)
	assert.Zero(t, cfg.JitterFraction)
	assert.NotNil(t, cfg.ShouldRetry)
}

func TestBackoff(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2,
	}
	assert.Equal(t, 100*time.Millisecond, cfg.backoff(1))
	assert.Equal(t, 200*time.Millisecond, cfg.backoff(2))
	assert.Equal(t, 400*time.Millisecond, cfg.backoff(3))
	assert.Equal(t, time.Second, cfg.backoff(10))

	cfg.JitterFraction = 0.5
	for range 50 {
		d := cfg.backoff(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestFromRetryConfig(t *testing.T) {
	cfg := FromRetryConfig(5, 100, 2000, 3, 0)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 2*time.Second, cfg.MaxBackoff)
	assert.InDelta(t, 3.0, cfg.Multiplier, 0)
	assert.Zero(t, cfg.JitterFraction)

	def := FromRetryConfig(0, 0, 0, 0, -1)
	assert.Equal(t, DefaultRetryConfig().MaxAttempts, def.MaxAttempts)
	assert.InDelta(t, DefaultRetryConfig().JitterFraction, def.JitterFraction, 0)
}

func TestRetryLogger(t *testing.T) {
	fn := RetryLogger("publish")
	require.NotNil(t, fn)
	assert.NotPanics(t, func() { fn(1, errors.New("busy")) })
}
