package resilience

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/fraudmind/core"
)

func fastRetryConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(3), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	underlying := fmt.Errorf("%w: still down", core.ErrProvider)

	err := Retry(context.Background(), fastRetryConfig(2), func() error {
		return underlying
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMaxRetriesExceeded)
	assert.ErrorIs(t, err, core.ErrProvider)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastRetryConfig(3), func() error {
		return fmt.Errorf("never succeeds")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb, err := NewCircuitBreaker(CircuitBreakerConfig{
		Name:      "test",
		Threshold: 2,
		Timeout:   time.Hour,
	})
	require.NoError(t, err)

	boom := fmt.Errorf("boom")
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, func() error { return boom }))
	require.Error(t, cb.Execute(ctx, func() error { return boom }))
	assert.Equal(t, "open", cb.GetState())

	// Open circuit rejects without executing
	executed := false
	err = cb.Execute(ctx, func() error { executed = true; return nil })
	assert.ErrorIs(t, err, core.ErrCircuitBreakerOpen)
	assert.False(t, executed)
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb, err := NewCircuitBreaker(CircuitBreakerConfig{
		Name:      "test",
		Threshold: 1,
		Timeout:   10 * time.Millisecond,
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, func() error { return fmt.Errorf("boom") }))
	assert.Equal(t, "open", cb.GetState())

	time.Sleep(15 * time.Millisecond)

	// Probe succeeds and closes the circuit
	require.NoError(t, cb.Execute(ctx, func() error { return nil }))
	assert.Equal(t, "closed", cb.GetState())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, err := NewCircuitBreaker(CircuitBreakerConfig{
		Name:      "test",
		Threshold: 1,
		Timeout:   10 * time.Millisecond,
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, func() error { return fmt.Errorf("boom") }))
	time.Sleep(15 * time.Millisecond)

	require.Error(t, cb.Execute(ctx, func() error { return fmt.Errorf("still down") }))
	assert.Equal(t, "open", cb.GetState())
}

func TestCircuitBreakerReset(t *testing.T) {
	cb, err := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", Threshold: 1, Timeout: time.Hour})
	require.NoError(t, err)

	require.Error(t, cb.Execute(context.Background(), func() error { return fmt.Errorf("boom") }))
	assert.Equal(t, "open", cb.GetState())

	cb.Reset()
	assert.Equal(t, "closed", cb.GetState())
	assert.True(t, cb.CanExecute())
}

func TestCircuitBreakerRequiresName(t *testing.T) {
	_, err := NewCircuitBreaker(CircuitBreakerConfig{})
	assert.Error(t, err)
}
