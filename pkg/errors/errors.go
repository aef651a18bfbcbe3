package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUpload      ErrorType = "upload"
	ErrorTypeService     ErrorType = "service"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error is a classified failure from a source or sink call.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Code == 0 {
		return fmt.Sprintf("%s error: %s", e.Type, msg)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the error's type is transient.
func (e *Error) Retryable() bool {
	if e.Type == ErrorTypeUpload || e.Type == ErrorTypeService {
		// Sink failures carry the status; only 5xx and 429 are worth repeating.
		return e.Code == 0 || IsRetryableStatusCode(e.Code)
	}
	return IsRetryable(e.Type)
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	case ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeParsing:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case http.StatusTooManyRequests:
		return true
	case 500, 502, 503, 504:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}

// New creates a typed error.
func New(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a type to an underlying error.
func Wrap(t ErrorType, err error, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...), Err: err}
}

// Network wraps a transport-level failure.
func Network(err error, format string, args ...interface{}) *Error {
	return Wrap(ErrorTypeNetwork, err, format, args...)
}

// NotFound marks a unit that does not exist at the source.
func NotFound(format string, args ...interface{}) *Error {
	e := New(ErrorTypeNotFound, format, args...)
	e.Code = http.StatusNotFound
	return e
}

// Parse marks content that could not be understood.
func Parse(err error, format string, args ...interface{}) *Error {
	return Wrap(ErrorTypeParsing, err, format, args...)
}

// Upload marks a sink write that failed with the given status code.
func Upload(code int, err error, format string, args ...interface{}) *Error {
	e := Wrap(ErrorTypeUpload, err, format, args...)
	e.Code = code
	return e
}

// Service marks a sink lookup that failed.
func Service(code int, err error, format string, args ...interface{}) *Error {
	e := Wrap(ErrorTypeService, err, format, args...)
	e.Code = code
	return e
}

// FromStatus classifies a non-2xx response from a source.
func FromStatus(code int, message string) *Error {
	t := ErrorTypeUnknown
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		t = ErrorTypeNotFound
	case code == http.StatusTooManyRequests:
		t = ErrorTypeRateLimit
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		t = ErrorTypeAuth
	case code >= 500:
		t = ErrorTypeServerError
	}
	return &Error{Type: t, Message: message, Code: code}
}

// TypeOf returns the type of the first *Error in err's chain.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether err's chain holds an *Error of type t.
func IsType(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// IsNotFound is shorthand for IsType(err, ErrorTypeNotFound).
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// Retryable reports whether err is a typed error worth repeating.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}
