package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quickRetryConfig(retryable bool) RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
		JitterEnabled: false,
		RetryableErrors: func(error) bool {
			return retryable
		},
	}
}

func TestRetryWithConfigRetriesUntilSuccess(t *testing.T) {
	attempts := 0
	err := RetryWithConfig(context.Background(), quickRetryConfig(true), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithConfigStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	permanent := errors.New("permanent")

	err := RetryWithConfig(context.Background(), quickRetryConfig(false), func() error {
		attempts++
		return permanent
	})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithConfigExhaustsAttempts(t *testing.T) {
	attempts := 0
	transient := errors.New("transient")

	err := RetryWithConfig(context.Background(), quickRetryConfig(true), func() error {
		attempts++
		return transient
	})

	require.ErrorIs(t, err, transient)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithConfigHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithConfig(ctx, quickRetryConfig(true), func() error {
		return errors.New("never reached")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateDelayBacksOffAndCaps(t *testing.T) {
	config := RetryConfig{
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      35 * time.Millisecond,
		BackoffFactor: 2.0,
		JitterEnabled: false,
	}

	assert.Equal(t, 10*time.Millisecond, calculateDelay(config, 0))
	assert.Equal(t, 20*time.Millisecond, calculateDelay(config, 1))
	assert.Equal(t, 35*time.Millisecond, calculateDelay(config, 2)) // capped
}

func TestRetryManagerPolicySelection(t *testing.T) {
	rm := NewRetryManager()
	rm.RegisterPolicy("persistence", FastRetryPolicy)

	assert.Equal(t, "fast", rm.GetPolicy("persistence").Name)
	assert.Equal(t, "standard", rm.GetPolicy("unregistered").Name)
}

func TestRetryManagerExecute(t *testing.T) {
	rm := NewRetryManager()
	rm.RegisterPolicy("persistence", RetryPolicy{
		Name: "test",
		Config: RetryConfig{
			MaxAttempts:   2,
			InitialDelay:  time.Millisecond,
			MaxDelay:      time.Millisecond,
			BackoffFactor: 1.0,
			JitterEnabled: false,
		},
	})

	attempts := 0
	err := rm.Execute(context.Background(), "persistence", func() error {
		attempts++
		return errors.New("connection refused") // classified retryable
	})

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}
