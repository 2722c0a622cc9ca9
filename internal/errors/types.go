package errors

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// ErrorType represents the classification of errors for diagnostics.
type ErrorType int

const (
	// ErrorTypeTransient - the next user-triggered attempt may succeed
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent - repeating the same request will fail the same way
	ErrorTypePermanent
	// ErrorTypeDegraded - can continue with reduced functionality
	ErrorTypeDegraded
	// ErrorTypeContract - the remote service broke the payload contract
	ErrorTypeContract
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypePermanent:
		return "permanent"
	case ErrorTypeDegraded:
		return "degraded"
	case ErrorTypeContract:
		return "contract"
	default:
		return "unknown"
	}
}

// ServiceUnavailable reports that a catalog fetch or state probe could not reach
// the risk service. Callers degrade to defaults instead of failing.
type ServiceUnavailable struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *ServiceUnavailable) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("service unavailable: %s", e.Operation)
	}
	return fmt.Sprintf("service unavailable: %s: %v", e.Operation, e.Err)
}

func (e *ServiceUnavailable) Unwrap() error {
	return e.Err
}

// AnalysisFailed reports a failed analyze call. Reason is the text surfaced to
// the user; Err carries the underlying cause (possibly an *InvalidAggregation).
type AnalysisFailed struct {
	Region     string
	Reason     string
	StatusCode int
	Err        error
}

func (e *AnalysisFailed) Error() string {
	if e.Region == "" {
		return fmt.Sprintf("analysis failed: %s", e.Reason)
	}
	return fmt.Sprintf("analysis of %s failed: %s", e.Region, e.Reason)
}

func (e *AnalysisFailed) Unwrap() error {
	return e.Err
}

// InvalidAggregation reports a payload that violates the aggregation contract.
type InvalidAggregation struct {
	Field  string
	Reason string
}

func (e *InvalidAggregation) Error() string {
	return fmt.Sprintf("invalid aggregation: %s: %s", e.Field, e.Reason)
}

// ChatFailed reports a failed chat call.
type ChatFailed struct {
	Reason     string
	StatusCode int
	Err        error
}

func (e *ChatFailed) Error() string {
	return fmt.Sprintf("chat failed: %s", e.Reason)
}

func (e *ChatFailed) Unwrap() error {
	return e.Err
}

// DegradedError represents an error where service can continue with reduced functionality
type DegradedError struct {
	Err     error
	Message string
}

func (e *DegradedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("degraded error: %v", e.Err)
}

func (e *DegradedError) Unwrap() error {
	return e.Err
}

// NewDegradedError creates a new degraded error with a user-facing message.
func NewDegradedError(err error, message string) *DegradedError {
	return &DegradedError{
		Err:     err,
		Message: message,
	}
}

// IsServiceUnavailable reports whether err is, or wraps, a *ServiceUnavailable.
func IsServiceUnavailable(err error) bool {
	var target *ServiceUnavailable
	return errors.As(err, &target)
}

// IsAnalysisFailed reports whether err is, or wraps, an *AnalysisFailed.
func IsAnalysisFailed(err error) bool {
	var target *AnalysisFailed
	return errors.As(err, &target)
}

// AsInvalidAggregation extracts the contract violation from err, if any.
func AsInvalidAggregation(err error) (*InvalidAggregation, bool) {
	var target *InvalidAggregation
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsChatFailed reports whether err is, or wraps, a *ChatFailed.
func IsChatFailed(err error) bool {
	var target *ChatFailed
	return errors.As(err, &target)
}

// IsDegraded checks if an error allows degraded service
func IsDegraded(err error) bool {
	var degradedErr *DegradedError
	return errors.As(err, &degradedErr)
}

// IsTransient reports whether a later, user-triggered attempt could succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := AsInvalidAggregation(err); ok {
		return false
	}
	if IsDegraded(err) {
		return true
	}
	if isNetworkError(err) || isSyscallError(err) {
		return true
	}
	if status := StatusCode(err); status > 0 {
		return isTransientHTTPStatus(status)
	}
	return false
}

// Classify returns the diagnostic category of err.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}
	if _, ok := AsInvalidAggregation(err); ok {
		return ErrorTypeContract
	}
	if IsDegraded(err) {
		return ErrorTypeDegraded
	}
	if IsTransient(err) {
		return ErrorTypeTransient
	}
	return ErrorTypePermanent
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var unavailable *ServiceUnavailable
	if errors.As(err, &unavailable) && unavailable.StatusCode > 0 {
		return unavailable.StatusCode
	}
	var analysis *AnalysisFailed
	if errors.As(err, &analysis) && analysis.StatusCode > 0 {
		return analysis.StatusCode
	}
	var chat *ChatFailed
	if errors.As(err, &chat) && chat.StatusCode > 0 {
		return chat.StatusCode
	}
	return 0
}

// Reason returns the user-facing failure text for err.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var analysis *AnalysisFailed
	if errors.As(err, &analysis) && analysis.Reason != "" {
		return analysis.Reason
	}
	var chat *ChatFailed
	if errors.As(err, &chat) && chat.Reason != "" {
		return chat.Reason
	}
	var degraded *DegradedError
	if errors.As(err, &degraded) && degraded.Message != "" {
		return degraded.Message
	}

	lowerErr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerErr, "connection refused"):
		return "Risk service is not running. Please check that the backend is started."
	case strings.Contains(lowerErr, "timeout") || strings.Contains(lowerErr, "deadline exceeded"):
		return "Request timed out. The analysis may still be running on the server; try again shortly."
	case strings.Contains(lowerErr, "no such host") || strings.Contains(lowerErr, "dns"):
		return "Network connectivity issue. Please check the service address and try again."
	}
	return err.Error()
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"timeout",
		"deadline exceeded",
		"connection reset",
		"broken pipe",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

func isSyscallError(err error) bool {
	var syscallErr syscall.Errno
	if errors.As(err, &syscallErr) {
		switch syscallErr {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
			syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}
	return false
}

func isTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, // 429
		http.StatusInternalServerError, // 500
		http.StatusBadGateway,          // 502
		http.StatusServiceUnavailable,  // 503
		http.StatusGatewayTimeout:      // 504
		return true
	}
	return false
}
