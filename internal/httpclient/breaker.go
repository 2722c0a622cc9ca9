package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	cwerrors "chainwatch/internal/errors"
	"chainwatch/internal/logging"
)

type circuitBreakerRoundTripper struct {
	base    http.RoundTripper
	breaker *cwerrors.CircuitBreaker
}

// NewWithCircuitBreaker builds an HTTP client guarded by a circuit breaker and
// returns the breaker so callers can report its state.
func NewWithCircuitBreaker(timeout time.Duration, logger logging.Logger, name string, config cwerrors.CircuitBreakerConfig) (*http.Client, *cwerrors.CircuitBreaker) {
	client := New(timeout, logger)
	if config.Logger == nil {
		config.Logger = logger
	}
	breaker := cwerrors.NewCircuitBreaker(defaultName(name), config)
	client.Transport = WrapTransport(client.Transport, breaker)
	return client, breaker
}

// WrapTransport wraps a transport with an existing circuit breaker.
func WrapTransport(base http.RoundTripper, breaker *cwerrors.CircuitBreaker) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if breaker == nil {
		return base
	}
	return &circuitBreakerRoundTripper{
		base:    base,
		breaker: breaker,
	}
}

func (t *circuitBreakerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if err := t.breaker.Allow(); err != nil {
		return nil, err
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		// The caller gave up; that says nothing about the service.
		if errors.Is(err, context.Canceled) {
			t.breaker.Mark(nil)
			return nil, err
		}
		t.breaker.Mark(err)
		return nil, err
	}
	if isBreakerFailureStatus(resp.StatusCode) {
		t.breaker.Mark(fmt.Errorf("http status %d", resp.StatusCode))
	} else {
		t.breaker.Mark(nil)
	}
	return resp, nil
}

// A 500 from the analyze endpoint is a failed analysis, not an outage, so only
// gateway-level statuses count against the breaker.
func isBreakerFailureStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func defaultName(name string) string {
	if name == "" {
		return "risk-service"
	}
	return name
}
