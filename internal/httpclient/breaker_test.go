package httpclient

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cwerrors "chainwatch/internal/errors"
)

func TestCircuitBreakerOpensOnGatewayErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, breaker := NewWithCircuitBreaker(time.Second, nil, "", cwerrors.CircuitBreakerConfig{
		FailureThreshold: 2,
		Timeout:          time.Minute,
	})

	for i := 0; i < 2; i++ {
		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}
	assert.Equal(t, cwerrors.StateOpen, breaker.State())

	_, err := client.Get(server.URL)
	require.Error(t, err)
	assert.True(t, cwerrors.IsDegraded(err))
	assert.Equal(t, int32(2), hits.Load())
}

func TestCircuitBreakerIgnoresAnalysisFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, breaker := NewWithCircuitBreaker(time.Second, nil, "risk-service", cwerrors.CircuitBreakerConfig{FailureThreshold: 1})

	for i := 0; i < 3; i++ {
		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}
	assert.Equal(t, cwerrors.StateClosed, breaker.State())
}

func TestWrapTransportWithoutBreaker(t *testing.T) {
	base := http.DefaultTransport
	assert.Equal(t, base, WrapTransport(base, nil))
}
