// Package remote provides the resilient client for the quota-limited
// authoritative ephemeris API and the bridge adapter for out-of-process
// engines. Both speak the same versioned wire contract:
//
//	POST {base}/engines/{engine_id}/calculate
//	request:  {"parameters": {...}, "context": {...}}
//	response: {"engine_id": "...", "result": {...}, "metadata": {...}}
//
// Non-2xx responses are retryable or not per status class: 5xx retryable,
// 4xx not.
package remote

import (
	"encoding/json"

	"github.com/siderium/astrocalc/pkg/engine"
)

// CalculateEnvelope is the request body for a calculate call.
type CalculateEnvelope struct {
	Parameters map[string]string `json:"parameters"`
	Context    CallContext       `json:"context"`
}

// CallContext carries request metadata across the process boundary.
type CallContext struct {
	Precision string `json:"precision"`
	Workflow  string `json:"workflow,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// CalculateResponse is the success body of a calculate call.
type CalculateResponse struct {
	EngineID string          `json:"engine_id"`
	Result   json.RawMessage `json:"result"`
	Metadata ResponseMeta    `json:"metadata"`
}

// ResponseMeta mirrors the upstream calculation metadata.
type ResponseMeta struct {
	Backend     string  `json:"backend"`
	Precision   string  `json:"precision"`
	CalcTimeMS  float64 `json:"calculation_time_ms"`
}

// NewEnvelope builds the wire envelope for a request.
func NewEnvelope(req engine.Request, requestID string) CalculateEnvelope {
	return CalculateEnvelope{
		Parameters: req.Params,
		Context: CallContext{
			Precision: string(req.Precision),
			Workflow:  req.Workflow,
			RequestID: requestID,
		},
	}
}
