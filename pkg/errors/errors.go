// Package errors defines the classified error taxonomy used across the
// similarity search subsystem. Classification drives retry decisions: only
// transient and timeout classes are retried.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorClass represents the classification of an error
type ErrorClass int

const (
	// ClassUnknown indicates an unclassified error
	ClassUnknown ErrorClass = iota
	// ClassTransient indicates a temporary error that may be retried
	ClassTransient
	// ClassPermanent indicates a permanent error that should not be retried
	ClassPermanent
	// ClassValidation indicates input validation error
	ClassValidation
	// ClassTimeout indicates a timeout error
	ClassTimeout
	// ClassCircuitBreaker indicates circuit breaker is open
	ClassCircuitBreaker
	// ClassNotFound indicates resource not found
	ClassNotFound
)

// Sentinel errors for the subsystem taxonomy.
var (
	// ErrExtractionUnavailable means every extraction tier was exhausted.
	// The signal-feature tier should make this unreachable for decodable
	// images.
	ErrExtractionUnavailable = New("EXTRACTION_UNAVAILABLE", "feature extraction unavailable", ClassTransient)

	// ErrCircuitOpen is the internal fast-fail when the breaker is open.
	// It surfaces to callers as ErrExtractionUnavailable.
	ErrCircuitOpen = New("CIRCUIT_OPEN", "circuit breaker is open", ClassCircuitBreaker)

	// ErrSearchUnavailable is the user-visible total-failure response,
	// distinct from an empty result set.
	ErrSearchUnavailable = New("SEARCH_UNAVAILABLE", "search temporarily unavailable", ClassTransient)
)

// ClassifiedError is an error carrying a code and a classification.
type ClassifiedError struct {
	Code    string
	Message string
	Class   ErrorClass
	cause   error
}

// Error implements the error interface
func (e *ClassifiedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ClassifiedError) Unwrap() error { return e.cause }

// Is matches on code so wrapped sentinels compare with errors.Is.
func (e *ClassifiedError) Is(target error) bool {
	t, ok := target.(*ClassifiedError)
	return ok && t.Code == e.Code
}

// New creates a new classified error
func New(code, message string, class ErrorClass) *ClassifiedError {
	return &ClassifiedError{Code: code, Message: message, Class: class}
}

// Wrap wraps an existing error with a code and classification.
func Wrap(err error, code, message string, class ErrorClass) *ClassifiedError {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Code: code, Message: message, Class: class, cause: err}
}

// Validation creates a validation error (never retried).
func Validation(message string) *ClassifiedError {
	return New("VALIDATION", message, ClassValidation)
}

// Storage wraps a storage failure as transient.
func Storage(err error) *ClassifiedError {
	return Wrap(err, "STORAGE", "storage operation failed", ClassTransient)
}

// ClassOf returns the classification of err, unwrapping as needed.
func ClassOf(err error) ErrorClass {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTimeout
		}
		return ClassTransient
	}
	return ClassUnknown
}

// IsRetryable reports whether err may be retried. Validation and other
// permanent failures are never retried; breaker-open fails fast.
func IsRetryable(err error) bool {
	switch ClassOf(err) {
	case ClassTransient, ClassTimeout:
		return true
	default:
		return false
	}
}
