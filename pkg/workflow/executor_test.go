package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/siderium/astrocalc/pkg/engine"
)

// stubRunner answers each engine with a canned payload or error.
type stubRunner struct {
	mu       sync.Mutex
	payloads map[string]string
	failures map[string]error
	requests []engine.Request
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (s *stubRunner) Calculate(_ context.Context, req engine.Request) (*engine.Result, error) {
	cur := s.inFlight.Add(1)
	for {
		p := s.peak.Load()
		if cur <= p || s.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	defer s.inFlight.Add(-1)

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if err, ok := s.failures[req.EngineID]; ok {
		return nil, err
	}
	payload, ok := s.payloads[req.EngineID]
	if !ok {
		payload = `{"ok": true}`
	}
	return &engine.Result{
		EngineID: req.EngineID,
		Data:     json.RawMessage(payload),
		Meta:     engine.Metadata{Backend: "local"},
	}, nil
}

func newTestExecutor(runner Runner) *Executor {
	return NewExecutor(runner, zerolog.Nop())
}

func TestExecutorRegistersCanonicalWorkflows(t *testing.T) {
	e := newTestExecutor(&stubRunner{})

	names := e.List()
	for _, want := range []string{BirthBlueprint, DailyPractice, DecisionSupport, SelfInquiry, FullSpectrum} {
		found := false
		for _, got := range names {
			if got == want {
				found = true
			}
		}
		if !found {
			t.Errorf("canonical workflow %q not registered", want)
		}
	}
}

func TestExecutorUnknownWorkflow(t *testing.T) {
	e := newTestExecutor(&stubRunner{})

	_, err := e.Execute(context.Background(), "ouija", nil, engine.PrecisionStandard)
	if !errors.Is(err, engine.ErrWorkflowUnknown) {
		t.Errorf("expected ErrWorkflowUnknown, got %v", err)
	}
}

func TestExecutorRunsAllSteps(t *testing.T) {
	runner := &stubRunner{}
	e := newTestExecutor(runner)
	e.Register(Spec{
		Name: "test-flow",
		Steps: []Step{
			{Name: "a", EngineID: "engine-a", Required: true},
			{Name: "b", EngineID: "engine-b", Required: true},
			{Name: "c", EngineID: "engine-c", Required: false},
		},
	})

	result, err := e.Execute(context.Background(), "test-flow", map[string]string{"date": "2024-06-21"}, engine.PrecisionStandard)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(result.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(result.Steps))
	}
	if result.Degraded {
		t.Error("fully successful run marked degraded")
	}
	for _, step := range result.Steps {
		if step.Result == nil {
			t.Errorf("step %q has no result", step.Name)
		}
	}

	// Every step request is tagged with the workflow name.
	for _, req := range runner.requests {
		if req.Workflow != "test-flow" {
			t.Errorf("request workflow = %q, want test-flow", req.Workflow)
		}
	}
}

func TestExecutorOptionalFailureDegrades(t *testing.T) {
	runner := &stubRunner{failures: map[string]error{"engine-c": fmt.Errorf("boom")}}
	e := newTestExecutor(runner)
	e.Register(Spec{
		Name: "test-flow",
		Steps: []Step{
			{Name: "a", EngineID: "engine-a", Required: true},
			{Name: "c", EngineID: "engine-c", Required: false},
		},
	})

	result, err := e.Execute(context.Background(), "test-flow", nil, engine.PrecisionStandard)
	if err != nil {
		t.Fatalf("optional failure must not fail the workflow: %v", err)
	}
	if !result.Degraded {
		t.Error("run with a failed optional step should be degraded")
	}

	for _, step := range result.Steps {
		if step.Name == "c" {
			if step.Error == "" {
				t.Error("failed step should record its error")
			}
			if step.Result != nil {
				t.Error("failed step should have no result")
			}
		}
	}
}

func TestExecutorRequiredFailureFails(t *testing.T) {
	runner := &stubRunner{failures: map[string]error{"engine-a": fmt.Errorf("boom")}}
	e := newTestExecutor(runner)
	e.Register(Spec{
		Name: "test-flow",
		Steps: []Step{
			{Name: "a", EngineID: "engine-a", Required: true},
			{Name: "b", EngineID: "engine-b", Required: false},
		},
	})

	_, err := e.Execute(context.Background(), "test-flow", nil, engine.PrecisionStandard)
	if err == nil {
		t.Fatal("required step failure must fail the workflow")
	}
}

func TestExecutorBoundsConcurrency(t *testing.T) {
	runner := &stubRunner{delay: 20 * time.Millisecond}
	e := newTestExecutor(runner)

	steps := make([]Step, 8)
	for i := range steps {
		steps[i] = Step{Name: fmt.Sprintf("s%d", i), EngineID: fmt.Sprintf("e%d", i)}
	}
	e.Register(Spec{Name: "wide-flow", Steps: steps, MaxConcurrent: 2})

	if _, err := e.Execute(context.Background(), "wide-flow", nil, engine.PrecisionStandard); err != nil {
		t.Fatal(err)
	}
	if peak := runner.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestExecutorStepParamsRemap(t *testing.T) {
	runner := &stubRunner{}
	e := newTestExecutor(runner)
	e.Register(Spec{
		Name: "remap-flow",
		Steps: []Step{
			{Name: "natal", EngineID: "engine-a", Params: pick("birth_instant:instant"), Required: true},
		},
	})

	input := map[string]string{"birth_instant": "1990-03-15T06:30:00Z", "unrelated": "x"}
	if _, err := e.Execute(context.Background(), "remap-flow", input, engine.PrecisionStandard); err != nil {
		t.Fatal(err)
	}

	req := runner.requests[0]
	if req.Params["instant"] != "1990-03-15T06:30:00Z" {
		t.Errorf("remapped param instant = %q", req.Params["instant"])
	}
	if _, ok := req.Params["unrelated"]; ok {
		t.Error("unpicked input leaked into step params")
	}
}

func TestExecutorStepPrecisionOverride(t *testing.T) {
	runner := &stubRunner{}
	e := newTestExecutor(runner)
	e.Register(Spec{
		Name: "precise-flow",
		Steps: []Step{
			{Name: "a", EngineID: "engine-a", Precision: engine.PrecisionHigh, Required: true},
			{Name: "b", EngineID: "engine-b", Required: true},
		},
	})

	if _, err := e.Execute(context.Background(), "precise-flow", nil, engine.PrecisionStandard); err != nil {
		t.Fatal(err)
	}

	byEngine := map[string]engine.Precision{}
	for _, req := range runner.requests {
		byEngine[req.EngineID] = req.Precision
	}
	if byEngine["engine-a"] != engine.PrecisionHigh {
		t.Errorf("engine-a precision = %s, want high", byEngine["engine-a"])
	}
	if byEngine["engine-b"] != engine.PrecisionStandard {
		t.Errorf("engine-b precision = %s, want standard", byEngine["engine-b"])
	}
}

func TestExecutorSynthesis(t *testing.T) {
	runner := &stubRunner{payloads: map[string]string{"engine-a": `{"value": 7}`}}
	e := newTestExecutor(runner)
	e.Register(Spec{
		Name: "synth-flow",
		Steps: []Step{
			{Name: "a", EngineID: "engine-a", Required: true},
		},
		Synthesize: func(steps map[string]*engine.Result) (json.RawMessage, error) {
			var probe struct {
				Value int `json:"value"`
			}
			if err := json.Unmarshal(steps["a"].Data, &probe); err != nil {
				return nil, err
			}
			return json.Marshal(map[string]int{"doubled": probe.Value * 2})
		},
	})

	result, err := e.Execute(context.Background(), "synth-flow", nil, engine.PrecisionStandard)
	if err != nil {
		t.Fatal(err)
	}
	var synth struct {
		Doubled int `json:"doubled"`
	}
	if err := json.Unmarshal(result.Synthesis, &synth); err != nil {
		t.Fatalf("decoding synthesis: %v", err)
	}
	if synth.Doubled != 14 {
		t.Errorf("synthesis doubled = %d, want 14", synth.Doubled)
	}
}

func TestExecutorSynthesisFailureDegrades(t *testing.T) {
	e := newTestExecutor(&stubRunner{})
	e.Register(Spec{
		Name: "bad-synth",
		Steps: []Step{
			{Name: "a", EngineID: "engine-a", Required: true},
		},
		Synthesize: func(map[string]*engine.Result) (json.RawMessage, error) {
			return nil, fmt.Errorf("cannot synthesize")
		},
	})

	result, err := e.Execute(context.Background(), "bad-synth", nil, engine.PrecisionStandard)
	if err != nil {
		t.Fatalf("synthesis failure must not fail the workflow: %v", err)
	}
	if !result.Degraded {
		t.Error("run with failed synthesis should be degraded")
	}
	if result.Synthesis != nil {
		t.Error("failed synthesis should leave no output")
	}
}
