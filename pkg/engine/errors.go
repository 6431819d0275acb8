package engine

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors surfaced by the calculation pipeline.
var (
	// ErrQuotaExceeded means the rate budget for the external dependency
	// is exhausted; no network attempt was made.
	ErrQuotaExceeded = errors.New("daily quota exceeded")

	// ErrCircuitOpen means the circuit breaker rejected the call without
	// attempting the network.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrEngineUnavailable means no backend can serve the calculation type.
	ErrEngineUnavailable = errors.New("no backend supports engine")

	// ErrWorkflowUnknown means the workflow name is not registered.
	ErrWorkflowUnknown = errors.New("unknown workflow")

	// ErrDeadlineExceeded is the distinct timeout error; it is never
	// conflated with a calculation failure.
	ErrDeadlineExceeded = errors.New("calculation deadline exceeded")
)

// CalculationError reports that a routine failed on valid input. It keeps
// the backend and inputs so failures can be diagnosed without re-running.
type CalculationError struct {
	EngineID string
	Backend  string
	Err      error
}

func (e *CalculationError) Error() string {
	return fmt.Sprintf("engine %s failed on backend %s: %v", e.EngineID, e.Backend, e.Err)
}

func (e *CalculationError) Unwrap() error { return e.Err }

// ValidationError reports a cross-check mismatch in validated mode. Both
// results are carried; the caller decides how to treat the disagreement.
type ValidationError struct {
	EngineID  string
	Field     string
	Local     float64
	Authority float64
	Tolerance float64

	// LocalResult and AuthorityResult are the full disagreeing outputs.
	LocalResult     *Result
	AuthorityResult *Result
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf(
		"engine %s validation mismatch on %s: local=%.6f authoritative=%.6f (tolerance %.6f)",
		e.EngineID, e.Field, e.Local, e.Authority, e.Tolerance,
	)
}

// Delta returns the absolute disagreement between the two backends.
func (e *ValidationError) Delta() float64 {
	d := e.Local - e.Authority
	if d < 0 {
		return -d
	}
	return d
}

// CacheError reports a storage tier failure. It never fails a request;
// the affected tier is skipped and the error logged.
type CacheError struct {
	Tier string
	Op   string
	Err  error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache tier %s %s: %v", e.Tier, e.Op, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// FallbackError reports that both the primary path and the local fallback
// failed. Both causes are kept so neither failure is masked.
type FallbackError struct {
	EngineID string
	Primary  error
	Fallback error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("engine %s: primary failed (%v) and fallback failed (%v)",
		e.EngineID, e.Primary, e.Fallback)
}

// Unwrap exposes both causes to errors.Is.
func (e *FallbackError) Unwrap() []error { return []error{e.Primary, e.Fallback} }

// TimeoutError wraps ErrDeadlineExceeded with the request that timed out.
type TimeoutError struct {
	EngineID string
	Deadline time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("engine %s: %v after %s", e.EngineID, ErrDeadlineExceeded, e.Deadline)
}

func (e *TimeoutError) Unwrap() error { return ErrDeadlineExceeded }
