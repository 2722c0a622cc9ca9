package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("risk-service", CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute})

	require.NoError(t, cb.Allow())
	cb.Mark(errors.New("boom"))
	assert.Equal(t, StateClosed, cb.State())

	cb.Mark(errors.New("boom"))
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Allow()
	require.Error(t, err)
	assert.True(t, IsDegraded(err))
	assert.Contains(t, Reason(err), "temporarily unavailable")
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("risk-service", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Second})
	cb.now = func() time.Time { return now }

	cb.Mark(errors.New("boom"))
	require.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Second)
	require.NoError(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.Mark(nil)
	assert.Equal(t, StateHalfOpen, cb.State())
	cb.Mark(nil)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("risk-service", CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Second})
	cb.now = func() time.Time { return now }

	cb.Mark(errors.New("boom"))
	now = now.Add(2 * time.Second)
	require.NoError(t, cb.Allow())

	cb.Mark(errors.New("still down"))
	assert.Equal(t, StateOpen, cb.State())
	assert.Error(t, cb.Allow())
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("risk-service", CircuitBreakerConfig{FailureThreshold: 2})
	cb.Mark(errors.New("boom"))
	cb.Mark(nil)
	cb.Mark(errors.New("boom"))

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, cb.Metrics().FailureCount)

	cb.Reset()
	assert.Equal(t, 0, cb.Metrics().FailureCount)
}
