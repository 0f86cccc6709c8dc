package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  30 * time.Millisecond,
		SuccessThreshold: 1,
	}
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())
	boom := errors.New("boom")

	calls := 0
	failing := func() error {
		calls++
		return boom
	}

	require.ErrorIs(t, cb.Call(failing), boom)
	assert.Equal(t, StateClosed, cb.State())

	require.ErrorIs(t, cb.Call(failing), boom)
	assert.Equal(t, StateOpen, cb.State())

	// Open breaker rejects without invoking the function.
	err := cb.Call(failing)
	var cbErr *CircuitBreakerError
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, 2, calls)
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())

	for i := 0; i < 2; i++ {
		_ = cb.Call(func() error { return errors.New("down") })
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(40 * time.Millisecond)

	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())

	for i := 0; i < 2; i++ {
		_ = cb.Call(func() error { return errors.New("down") })
	}
	time.Sleep(40 * time.Millisecond)

	_ = cb.Call(func() error { return errors.New("still down") })
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())
	for i := 0; i < 2; i++ {
		_ = cb.Call(func() error { return errors.New("down") })
	}
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Call(func() error { return nil }))
}

func TestCircuitBreakerStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
}

func TestCircuitBreakerRegistryReusesInstances(t *testing.T) {
	reg := NewCircuitBreakerRegistry()

	a := reg.GetOrCreate("model-a:5001", testBreakerConfig())
	b := reg.GetOrCreate("model-b:5002", testBreakerConfig())
	again := reg.GetOrCreate("model-a:5001", testBreakerConfig())

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)

	stats := reg.GetStats()
	assert.Len(t, stats, 2)
	assert.Contains(t, stats, "model-a:5001")
}

func TestCircuitBreakerRegistryResetAll(t *testing.T) {
	reg := NewCircuitBreakerRegistry()
	cb := reg.GetOrCreate("model-a:5001", testBreakerConfig())
	for i := 0; i < 2; i++ {
		_ = cb.Call(func() error { return errors.New("down") })
	}
	require.Equal(t, StateOpen, cb.State())

	reg.ResetAll()
	assert.Equal(t, StateClosed, cb.State())
}
