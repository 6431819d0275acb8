// Package engine defines the shared data model for astrological
// calculation engines: requests, results, precision tiers, freshness
// classes, and the backend capability interface.
package engine

import (
	"context"
	"encoding/json"
	"time"
)

// Precision selects how a calculation is produced.
type Precision string

const (
	// PrecisionStandard is served by the fast local routine.
	PrecisionStandard Precision = "standard"

	// PrecisionHigh is served by the authoritative backend.
	PrecisionHigh Precision = "high"

	// PrecisionValidated runs both backends and cross-checks the results.
	PrecisionValidated Precision = "validated"
)

// Valid reports whether p is a known precision tier.
func (p Precision) Valid() bool {
	switch p {
	case PrecisionStandard, PrecisionHigh, PrecisionValidated:
		return true
	}
	return false
}

// Freshness classifies how long a cached result remains valid.
type Freshness string

const (
	// FreshnessImmutable marks results over fixed historical facts
	// (birth charts). They never expire, only capacity can evict them.
	FreshnessImmutable Freshness = "immutable"

	// FreshnessDaily marks results valid for one solar day (panchanga
	// elements for a calendar date).
	FreshnessDaily Freshness = "daily"

	// FreshnessShortLived marks results that depend on the current
	// instant (transit clocks). They expire after a few minutes.
	FreshnessShortLived Freshness = "short-lived"
)

// Request is a normalized calculation request. Build it with NewRequest;
// it must not be mutated afterwards, its fingerprint is the cache key.
type Request struct {
	// EngineID identifies the calculation type (e.g. "panchanga").
	EngineID string `json:"engine_id"`

	// Params is the canonical parameter set. Values must already be in
	// canonical form (see FormatFloat / FormatTime).
	Params map[string]string `json:"params"`

	// Precision is the requested precision tier.
	Precision Precision `json:"precision"`

	// Workflow names the composite request this belongs to, if any.
	Workflow string `json:"workflow,omitempty"`
}

// NewRequest builds an immutable Request. The parameter map is copied so
// later mutation by the caller cannot change the fingerprint.
func NewRequest(engineID string, params map[string]string, precision Precision) Request {
	copied := make(map[string]string, len(params))
	for k, v := range params {
		copied[k] = v
	}
	if !precision.Valid() {
		precision = PrecisionStandard
	}
	return Request{
		EngineID:  engineID,
		Params:    copied,
		Precision: precision,
	}
}

// WithWorkflow returns a copy of the request tagged with a workflow name.
func (r Request) WithWorkflow(name string) Request {
	r.Workflow = name
	return r
}

// Metadata records how a result was produced.
type Metadata struct {
	// Backend is the computation source: "local", "authoritative" or
	// "fallback".
	Backend string `json:"backend"`

	// Precision is the precision tier that was actually achieved.
	Precision Precision `json:"precision"`

	// Cached is true when the result was served from a cache tier.
	Cached bool `json:"cached"`

	// Elapsed is the wall-clock computation time.
	Elapsed time.Duration `json:"elapsed_ns"`

	// Timestamp is when the result was computed.
	Timestamp time.Time `json:"timestamp"`
}

// Result is the output of one calculation.
type Result struct {
	EngineID string          `json:"engine_id"`
	Data     json.RawMessage `json:"data"`
	Meta     Metadata        `json:"metadata"`
}

// Backend is a computation strategy: a set of calculation routines
// reachable through one mechanism (in-process, quota-limited remote API,
// or out-of-process bridge). The set of backends is closed; the router's
// decision table depends on it.
type Backend interface {
	// Name identifies the backend for logging and metrics.
	Name() string

	// Supports reports whether the backend can serve the calculation type.
	Supports(engineID string) bool

	// Calculate produces a result for the request. Implementations must
	// honor ctx cancellation on any blocking path.
	Calculate(ctx context.Context, req Request) (*Result, error)
}

// Info describes one calculation type known to the orchestrator.
type Info struct {
	// ID is the engine identifier used in requests and URLs.
	ID string `json:"id"`

	// Name is the human-readable engine name.
	Name string `json:"name"`

	// Freshness is the cache freshness class for this engine's results.
	Freshness Freshness `json:"freshness"`
}
