package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork      ErrorType = "network"
	ErrorTypeRateLimit    ErrorType = "rate_limit"
	ErrorTypeAuth         ErrorType = "auth"
	ErrorTypeParsing      ErrorType = "parsing"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeServerError  ErrorType = "server_error"
	ErrorTypeInvalidInput ErrorType = "invalid_input"
	ErrorTypeUnknown      ErrorType = "unknown"
)

// Error represents an API error with type information. RetryAfter is only
// meaningful for rate limit errors and holds the server-mandated wait.
type Error struct {
	Type       ErrorType
	Message    string
	Code       int
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Type == ErrorTypeRateLimit && e.RetryAfter > 0 {
		return fmt.Sprintf("%s error (code %d): %s (retry after %s)", e.Type, e.Code, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// New builds a typed error.
func New(errType ErrorType, code int, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	}
}

// NewRateLimit builds a rate limit error carrying the wait the server asked for.
func NewRateLimit(code int, retryAfter time.Duration) *Error {
	return &Error{
		Type:       ErrorTypeRateLimit,
		Message:    "rate limit exceeded",
		Code:       code,
		RetryAfter: retryAfter,
	}
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown for untyped errors.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err is a typed error of the given type.
func Is(err error, errType ErrorType) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Type == errType
}

// IsRateLimited reports whether err signals a server-side rate limit.
func IsRateLimited(err error) bool {
	return Is(err, ErrorTypeRateLimit)
}

// RetryAfterOf extracts the server-mandated wait from a rate limit error.
// The boolean is false when err is not a rate limit error or carries no wait.
func RetryAfterOf(err error) (time.Duration, bool) {
	var e *Error
	if !stderrors.As(err, &e) || e.Type != ErrorTypeRateLimit || e.RetryAfter <= 0 {
		return 0, false
	}
	return e.RetryAfter, true
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0, 429:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
