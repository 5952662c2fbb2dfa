package client

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorCategory is the normalized failure taxonomy for verification API calls.
type ErrorCategory string

const (
	// ErrorTimeout indicates the service took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData indicates the service returned an unusable payload
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorAuthentication indicates the service refused our credentials
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorOutage indicates the service is unreachable or failing
	ErrorOutage ErrorCategory = "outage"

	// ErrorNotFound indicates the job or result does not exist (yet)
	ErrorNotFound ErrorCategory = "not_found"

	// ErrorRateLimited indicates too many requests
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorRejected indicates the service refused the request as invalid
	ErrorRejected ErrorCategory = "rejected"

	// ErrorNotConfigured indicates no base URL was supplied
	ErrorNotConfigured ErrorCategory = "not_configured"

	// ErrorInternal indicates an unexpected local failure
	ErrorInternal ErrorCategory = "internal"
)

// APIError wraps a failed call with its category.
type APIError struct {
	Category   ErrorCategory
	Operation  string
	StatusCode int
	Message    string
	Underlying error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("verification api %s [%s]: %s", e.Operation, e.Category, e.Message)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Underlying != nil {
		msg += ": " + e.Underlying.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Underlying
}

// Transient reports whether the failure says something about service health
// rather than about the request. Only transient failures trip the breaker.
func (e *APIError) Transient() bool {
	return e.Category == ErrorTimeout || e.Category == ErrorOutage
}

func newAPIError(category ErrorCategory, operation, message string, underlying error) *APIError {
	return &APIError{Category: category, Operation: operation, Message: message, Underlying: underlying}
}

// GetCategory extracts the category from err, or ErrorInternal.
func GetCategory(err error) ErrorCategory {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Category
	}
	return ErrorInternal
}

// ErrNotConfigured is returned by Disabled.
var ErrNotConfigured = newAPIError(ErrorNotConfigured, "any", "VERIFICATION_API_URL is not set", nil)

func classifyTransportError(operation string, err error) *APIError {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return newAPIError(ErrorTimeout, operation, "request timed out", err)
	case errors.Is(err, context.Canceled):
		return newAPIError(ErrorInternal, operation, "request cancelled", err)
	default:
		return newAPIError(ErrorOutage, operation, "request failed", err)
	}
}

func classifyStatus(operation string, status int, body []byte) *APIError {
	var category ErrorCategory
	switch {
	case status == 401 || status == 403:
		category = ErrorAuthentication
	case status == 404:
		category = ErrorNotFound
	case status == 408 || status == 504:
		category = ErrorTimeout
	case status == 429:
		category = ErrorRateLimited
	case status >= 500:
		category = ErrorOutage
	default:
		category = ErrorRejected
	}
	e := newAPIError(category, operation, "unexpected status", nil)
	e.StatusCode = status
	if len(body) > 0 {
		e.Message = "unexpected status: " + truncate(string(body), 200)
	}
	return e
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
