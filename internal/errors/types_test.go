package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"syscall"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "degraded error",
			err:      NewDegradedError(errors.New("open"), "breaker open"),
			expected: true,
		},
		{
			name:     "invalid aggregation",
			err:      &AnalysisFailed{Reason: "bad", Err: &InvalidAggregation{Field: "risk_score", Reason: "mismatch"}},
			expected: false,
		},
		{
			name:     "server error 503",
			err:      &AnalysisFailed{Reason: "unavailable", StatusCode: http.StatusServiceUnavailable},
			expected: true,
		},
		{
			name:     "bad request 400",
			err:      &AnalysisFailed{Reason: "Invalid region", StatusCode: http.StatusBadRequest},
			expected: false,
		},
		{
			name:     "connection refused",
			err:      fmt.Errorf("dial tcp 127.0.0.1:8000: connect: connection refused"),
			expected: true,
		},
		{
			name:     "syscall reset",
			err:      fmt.Errorf("read: %w", syscall.ECONNRESET),
			expected: true,
		},
		{
			name:     "chat failure with 502",
			err:      &ChatFailed{Reason: "bad gateway", StatusCode: http.StatusBadGateway},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.expected {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorType
	}{
		{
			name:     "contract violation",
			err:      fmt.Errorf("wrapped: %w", &AnalysisFailed{Err: &InvalidAggregation{Field: "breakdown", Reason: "empty"}}),
			expected: ErrorTypeContract,
		},
		{
			name:     "degraded",
			err:      NewDegradedError(errors.New("open"), "breaker open"),
			expected: ErrorTypeDegraded,
		},
		{
			name:     "transient",
			err:      &ServiceUnavailable{Operation: "list regions", StatusCode: http.StatusBadGateway},
			expected: ErrorTypeTransient,
		},
		{
			name:     "permanent",
			err:      &AnalysisFailed{Reason: "Invalid region", StatusCode: http.StatusBadRequest},
			expected: ErrorTypePermanent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.expected {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.expected)
			}
		})
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{
			name:     "analysis reason wins",
			err:      fmt.Errorf("ctx: %w", &AnalysisFailed{Region: "Shanghai", Reason: "upstream exploded"}),
			contains: "upstream exploded",
		},
		{
			name:     "chat reason",
			err:      &ChatFailed{Reason: "HTTP 500"},
			contains: "HTTP 500",
		},
		{
			name:     "connection refused",
			err:      fmt.Errorf("dial tcp: connection refused"),
			contains: "not running",
		},
		{
			name:     "timeout",
			err:      fmt.Errorf("context deadline exceeded"),
			contains: "timed out",
		},
		{
			name:     "fallback to message",
			err:      errors.New("something odd"),
			contains: "something odd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reason(tt.err)
			if got == "" || !containsFold(got, tt.contains) {
				t.Errorf("Reason(%v) = %q, want substring %q", tt.err, got, tt.contains)
			}
		})
	}

	if Reason(nil) != "" {
		t.Fatal("expected empty reason for nil error")
	}
}

func TestErrorsUnwrapToCause(t *testing.T) {
	violation := &InvalidAggregation{Field: "weights", Reason: "sum 0.9 != 1"}
	err := &AnalysisFailed{Region: "Rotterdam", Reason: violation.Error(), Err: violation}

	got, ok := AsInvalidAggregation(err)
	if !ok || got != violation {
		t.Fatalf("expected to extract violation, got %v", got)
	}
	if !IsAnalysisFailed(fmt.Errorf("outer: %w", err)) {
		t.Fatal("expected AnalysisFailed through wrapping")
	}
	if IsChatFailed(err) || IsServiceUnavailable(err) {
		t.Fatal("unexpected classification")
	}
	if StatusCode(&ServiceUnavailable{Operation: "probe", StatusCode: 503}) != 503 {
		t.Fatal("expected status code from ServiceUnavailable")
	}
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
