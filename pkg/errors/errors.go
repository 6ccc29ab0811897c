// Package errors provides structured error handling for deltashare
package errors

import (
	"context"
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal client errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents invalid caller input
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeUnsupportedVersion is returned when a profile or table declares a
	// version newer than this client supports
	ErrorTypeUnsupportedVersion ErrorType = "unsupported_version"
	// ErrorTypeMalformedRecord represents unparseable or unrecognized protocol records
	ErrorTypeMalformedRecord ErrorType = "malformed_record"
	// ErrorTypeTransport represents network and timeout failures
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeNotFound represents a 404 from the sharing server
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeAuthentication represents 401/403 responses
	ErrorTypeAuthentication ErrorType = "authentication"
	// ErrorTypeHTTPStatus represents any other non-2xx response
	ErrorTypeHTTPStatus ErrorType = "http_status"
	// ErrorTypePartialFetch is returned when one of the concurrent file fetches fails
	ErrorTypePartialFetch ErrorType = "partial_fetch"
	// ErrorTypeCancelled represents a caller-requested abort or expired deadline
	ErrorTypeCancelled ErrorType = "cancelled"
	// ErrorTypeCapability represents a feature this client does not support
	ErrorTypeCapability ErrorType = "capability"
)

// Detail keys used across packages.
const (
	DetailStatusCode = "status_code"
	DetailErrorCode  = "error_code"
	DetailRecord     = "record"
	DetailURL        = "url"
	DetailLine       = "line"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Detail returns a detail value set with WithDetail.
func (e *Error) Detail(key string) (interface{}, bool) {
	if e.Details == nil {
		return nil, false
	}
	v, ok := e.Details[key]
	return v, ok
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsRetryable returns true if retrying the whole operation may succeed.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeTransport, ErrorTypePartialFetch:
		return true
	case ErrorTypeHTTPStatus:
		code, _ := StatusCode(err)
		return code == 429 || code >= 500
	default:
		return false
	}
}

// IsType checks if the outermost structured error in the chain has the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// IsNotFound reports whether err carries a 404 from the server.
func IsNotFound(err error) bool {
	if IsType(err, ErrorTypeNotFound) {
		return true
	}
	code, ok := StatusCode(err)
	return ok && code == 404
}

// StatusCode returns the HTTP status attached to the first error in the chain
// that carries one.
func StatusCode(err error) (int, bool) {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return 0, false
		}
		if v, ok := e.Detail(DetailStatusCode); ok {
			if code, ok := v.(int); ok {
				return code, true
			}
		}
		err = e.Cause
	}
	return 0, false
}

// FromContext converts a context failure into a cancelled error. It returns
// nil when ctx is still live.
func FromContext(ctx context.Context) *Error {
	if ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(ctx)
	if cause == nil {
		cause = ctx.Err()
	}
	return Wrap(cause, ErrorTypeCancelled, "operation cancelled")
}

// Is, As and Join re-export the standard library helpers so callers need a single import.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
)

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
