package remote

import (
	"errors"
	"fmt"
)

// Common errors returned by the remote layer.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during
	// a retry backoff.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass classifies an upstream failure for retry and metrics.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses; never retried.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses; retried.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport failures; retried, and the
	// quota token is returned because the upstream never saw the call.
	ErrorClassNetwork ErrorClass = "network"
)

// APIError is a failure reported by the upstream API.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error { return e.Err }

// classify maps a status code (or transport error) to an error class.
func classify(statusCode int, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}
	switch {
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// shouldRetry reports whether an error class is worth another attempt.
// Client errors are not: the request itself is wrong and a retry only
// wastes quota.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassServer, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
