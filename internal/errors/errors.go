package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType classifies a pipeline error for retry and reporting decisions
type ErrorType string

const (
	ErrTransient   ErrorType = "TRANSIENT"
	ErrRateLimited ErrorType = "RATE_LIMITED"
	ErrFatal       ErrorType = "FATAL"
	ErrIntegrity   ErrorType = "INTEGRITY"
)

// PipelineError represents a classified collection error
type PipelineError struct {
	Type       ErrorType
	Message    string
	Cause      error
	StatusCode int
	ResetAt    time.Time
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// New creates a new PipelineError
func New(errType ErrorType, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    errType,
		Message: message,
		Cause:   cause,
	}
}

// NewTransient creates a retryable error (network blips, 5xx responses)
func NewTransient(message string, cause error) *PipelineError {
	return New(ErrTransient, message, cause)
}

// NewRateLimited creates a rate-limit error carrying the known resume time
func NewRateLimited(message string, resetAt time.Time) *PipelineError {
	return &PipelineError{
		Type:    ErrRateLimited,
		Message: message,
		ResetAt: resetAt,
	}
}

// NewFatal creates a non-retryable error (auth failure, missing resource, malformed schema)
func NewFatal(message string, cause error) *PipelineError {
	return New(ErrFatal, message, cause)
}

// NewFatalStatus creates a non-retryable error for an upstream HTTP rejection
func NewFatalStatus(statusCode int, message string) *PipelineError {
	return &PipelineError{
		Type:       ErrFatal,
		Message:    message,
		StatusCode: statusCode,
	}
}

// NewIntegrity creates a data-quality error. Integrity violations indicate a
// mapping bug and must never be retried or silently corrected.
func NewIntegrity(message string) *PipelineError {
	return New(ErrIntegrity, message, nil)
}

func typeOf(err error) (ErrorType, bool) {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Type, true
	}
	return "", false
}

// IsTransient checks if the error is a plain transient error
func IsTransient(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTransient
}

// IsRateLimited checks if the error is a rate-limit error
func IsRateLimited(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrRateLimited
}

// IsRetryable reports whether the error may be retried. Rate-limit errors are
// a retryable subtype of transient errors.
func IsRetryable(err error) bool {
	t, ok := typeOf(err)
	return ok && (t == ErrTransient || t == ErrRateLimited)
}

// IsFatal checks if the error is non-retryable
func IsFatal(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrFatal
}

// IsIntegrity checks if the error is a data integrity violation
func IsIntegrity(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrIntegrity
}

// IsNotFound checks if the error is a fatal 404 on a named resource
func IsNotFound(err error) bool {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Type == ErrFatal && pe.StatusCode == 404
	}
	return false
}

// ResetTime returns the resume time of a rate-limit error
func ResetTime(err error) (time.Time, bool) {
	var pe *PipelineError
	if stderrors.As(err, &pe) && pe.Type == ErrRateLimited {
		return pe.ResetAt, true
	}
	return time.Time{}, false
}
