package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/siderium/astrocalc/pkg/engine"
	"github.com/siderium/astrocalc/pkg/orchestrator"
	"github.com/siderium/astrocalc/pkg/remote"
	"github.com/siderium/astrocalc/pkg/workflow"
)

// calculateRequest is the HTTP request body for a calculation. It
// mirrors the wire contract the remote layer speaks, so an astro-server
// can itself act as an upstream for another instance.
type calculateRequest struct {
	Parameters map[string]string `json:"parameters"`
	Context    struct {
		Precision string `json:"precision"`
		Workflow  string `json:"workflow,omitempty"`
	} `json:"context"`
}

type workflowRequest struct {
	Input     map[string]string `json:"input"`
	Precision string            `json:"precision,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type statsResponse struct {
	Orchestrator orchestrator.Status `json:"orchestrator"`
	Upstream     *remote.Status      `json:"upstream,omitempty"`
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleEngines(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"engines": orch.Catalog()})
	}
}

func handleCalculate(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engineID := r.PathValue("engine_id")

		var body calculateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
			return
		}

		precision := engine.Precision(body.Context.Precision)
		if body.Context.Precision == "" {
			precision = engine.PrecisionStandard
		} else if !precision.Valid() {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid precision "+body.Context.Precision)
			return
		}

		req := engine.NewRequest(engineID, body.Parameters, precision)
		if body.Context.Workflow != "" {
			req = req.WithWorkflow(body.Context.Workflow)
		}

		result, err := orch.Calculate(r.Context(), req)
		if err != nil {
			status, kind := classifyError(err)
			writeError(w, status, kind, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"engine_id": result.EngineID,
			"result":    result.Data,
			"metadata":  result.Meta,
		})
	}
}

func handleWorkflows(executor *workflow.Executor) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"workflows": executor.List()})
	}
}

func handleWorkflowExecute(executor *workflow.Executor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("workflow")

		var body workflowRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
			return
		}
		precision := engine.Precision(body.Precision)
		if body.Precision == "" {
			precision = engine.PrecisionStandard
		} else if !precision.Valid() {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid precision "+body.Precision)
			return
		}

		result, err := executor.Execute(r.Context(), name, body.Input, precision)
		if err != nil {
			status, kind := classifyError(err)
			writeError(w, status, kind, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleStats(orch *orchestrator.Orchestrator, upstream *remote.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := statsResponse{Orchestrator: orch.Status()}
		if upstream != nil {
			status := upstream.Status()
			resp.Upstream = &status
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleCacheClear(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orch.ClearCache(r.Context())
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	}
}

// classifyError maps pipeline errors onto HTTP status codes.
func classifyError(err error) (int, string) {
	var validationErr *engine.ValidationError
	switch {
	case errors.Is(err, engine.ErrEngineUnavailable), errors.Is(err, engine.ErrWorkflowUnknown):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, engine.ErrQuotaExceeded):
		return http.StatusTooManyRequests, "quota_exceeded"
	case errors.Is(err, engine.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "circuit_open"
	case errors.Is(err, engine.ErrDeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &validationErr):
		return http.StatusConflict, "validation_mismatch"
	default:
		return http.StatusInternalServerError, "calculation_failed"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}
