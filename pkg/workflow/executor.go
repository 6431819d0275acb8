// Package workflow composes multiple calculation engines into named
// multi-step flows. Steps run concurrently under a bounded fan-out;
// required steps fail the workflow, optional steps degrade it.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/siderium/astrocalc/pkg/engine"
)

var (
	workflowRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astro_workflow_runs_total",
		Help: "Workflow executions by workflow and outcome",
	}, []string{"workflow", "outcome"}) // "success", "degraded", "error"

	workflowDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "astro_workflow_duration_seconds",
		Help:    "End-to-end workflow execution time",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
	}, []string{"workflow"})
)

// DefaultMaxConcurrent bounds step fan-out when a workflow does not set
// its own limit.
const DefaultMaxConcurrent = 4

// Runner executes one calculation. The orchestrator satisfies this.
type Runner interface {
	Calculate(ctx context.Context, req engine.Request) (*engine.Result, error)
}

// Step is one calculation inside a workflow.
type Step struct {
	// Name identifies the step inside the workflow result.
	Name string

	// EngineID is the calculation engine the step invokes.
	EngineID string

	// Precision overrides the workflow default when non-empty.
	Precision engine.Precision

	// Params derives the step's engine parameters from the workflow
	// input. A nil Params passes the input through unchanged.
	Params func(input map[string]string) map[string]string

	// Required steps fail the whole workflow when they fail; optional
	// steps only record their error.
	Required bool
}

// Spec is a named workflow definition.
type Spec struct {
	// Name is the workflow identifier used in requests and URLs.
	Name string

	// Description is a one-line human-readable summary.
	Description string

	// Steps are executed concurrently, bounded by MaxConcurrent.
	Steps []Step

	// MaxConcurrent bounds step fan-out; zero means DefaultMaxConcurrent.
	MaxConcurrent int

	// Synthesize combines the completed step results into a summary.
	// Optional steps that failed are absent from the map. Nil skips
	// synthesis.
	Synthesize func(steps map[string]*engine.Result) (json.RawMessage, error)
}

// StepOutcome records how one step ended.
type StepOutcome struct {
	Name     string          `json:"name"`
	EngineID string          `json:"engine_id"`
	Result   *engine.Result  `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
	Required bool            `json:"required"`
	Elapsed  time.Duration   `json:"elapsed_ns"`
}

// Result is the outcome of one workflow execution.
type Result struct {
	Workflow  string          `json:"workflow"`
	Steps     []StepOutcome   `json:"steps"`
	Synthesis json.RawMessage `json:"synthesis,omitempty"`
	Degraded  bool            `json:"degraded"`
	Elapsed   time.Duration   `json:"elapsed_ns"`
	Timestamp time.Time       `json:"timestamp"`
}

// Executor runs workflow specs against a Runner.
type Executor struct {
	runner Runner
	logger zerolog.Logger

	mu    sync.RWMutex
	specs map[string]Spec
}

// NewExecutor creates an executor with the canonical workflows already
// registered.
func NewExecutor(runner Runner, logger zerolog.Logger) *Executor {
	e := &Executor{
		runner: runner,
		logger: logger.With().Str("component", "workflow").Logger(),
		specs:  make(map[string]Spec),
	}
	for _, spec := range CanonicalWorkflows() {
		e.Register(spec)
	}
	return e
}

// Register adds or replaces a workflow definition.
func (e *Executor) Register(spec Spec) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.specs[spec.Name] = spec
}

// List returns the registered workflow names, sorted.
func (e *Executor) List() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.specs))
	for name := range e.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Spec returns a registered workflow definition by name.
func (e *Executor) Spec(name string) (Spec, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	spec, ok := e.specs[name]
	return spec, ok
}

// Execute runs the named workflow with the given input parameters and
// default precision. Steps run concurrently; a required step failure
// cancels the remaining steps and fails the run.
func (e *Executor) Execute(ctx context.Context, name string, input map[string]string, precision engine.Precision) (*Result, error) {
	spec, ok := e.Spec(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", engine.ErrWorkflowUnknown, name)
	}

	start := time.Now()
	outcomes := make([]StepOutcome, len(spec.Steps))

	limit := spec.MaxConcurrent
	if limit <= 0 {
		limit = DefaultMaxConcurrent
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, step := range spec.Steps {
		g.Go(func() error {
			stepStart := time.Now()
			outcome := StepOutcome{
				Name:     step.Name,
				EngineID: step.EngineID,
				Required: step.Required,
			}

			params := input
			if step.Params != nil {
				params = step.Params(input)
			}
			prec := precision
			if step.Precision != "" {
				prec = step.Precision
			}
			req := engine.NewRequest(step.EngineID, params, prec).WithWorkflow(spec.Name)

			res, err := e.runner.Calculate(gctx, req)
			outcome.Elapsed = time.Since(stepStart)
			if err != nil {
				outcome.Error = err.Error()
				outcomes[i] = outcome
				if step.Required {
					return fmt.Errorf("required step %q: %w", step.Name, err)
				}
				e.logger.Warn().
					Str("workflow", spec.Name).
					Str("step", step.Name).
					Err(err).
					Msg("Optional workflow step failed")
				return nil
			}
			outcome.Result = res
			outcomes[i] = outcome
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		workflowRunsTotal.WithLabelValues(spec.Name, "error").Inc()
		workflowDuration.WithLabelValues(spec.Name).Observe(time.Since(start).Seconds())
		return nil, err
	}

	result := &Result{
		Workflow:  spec.Name,
		Steps:     outcomes,
		Elapsed:   time.Since(start),
		Timestamp: time.Now().UTC(),
	}

	completed := make(map[string]*engine.Result, len(outcomes))
	for _, o := range outcomes {
		if o.Result != nil {
			completed[o.Name] = o.Result
		} else {
			result.Degraded = true
		}
	}

	if spec.Synthesize != nil {
		synthesis, err := spec.Synthesize(completed)
		if err != nil {
			// Synthesis is derived commentary; its failure degrades the
			// run rather than discarding the step results.
			e.logger.Warn().
				Str("workflow", spec.Name).
				Err(err).
				Msg("Workflow synthesis failed")
			result.Degraded = true
		} else {
			result.Synthesis = synthesis
		}
	}

	outcome := "success"
	if result.Degraded {
		outcome = "degraded"
	}
	workflowRunsTotal.WithLabelValues(spec.Name, outcome).Inc()
	workflowDuration.WithLabelValues(spec.Name).Observe(time.Since(start).Seconds())

	e.logger.Info().
		Str("workflow", spec.Name).
		Int("steps", len(outcomes)).
		Bool("degraded", result.Degraded).
		Dur("elapsed", result.Elapsed).
		Msg("Workflow complete")

	return result, nil
}
