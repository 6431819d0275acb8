// Package testutil provides testing utilities for the calculation
// pipeline, mainly a scriptable mock of the authoritative ephemeris API.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for one mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockUpstream is a configurable mock of the authoritative API. It
// serves the calculate wire contract and can be scripted to fail a set
// number of times before recovering, which is what breaker and retry
// tests need.
type MockUpstream struct {
	server *httptest.Server

	mu        sync.Mutex
	handlers  map[string]func(w http.ResponseWriter, r *http.Request)
	failures  int // remaining scripted failures
	failWith  int
	requests  int
	lastBody  []byte
	lastPath  string
}

// NewMockUpstream creates a mock server answering every engine with a
// canned longitude payload.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
		failWith: http.StatusInternalServerError,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mock.mu.Lock()
		mock.requests++
		mock.lastPath = r.URL.Path
		mock.lastBody = body

		if mock.failures != 0 {
			if mock.failures > 0 {
				mock.failures--
			}
			status := mock.failWith
			mock.mu.Unlock()
			w.WriteHeader(status)
			fmt.Fprintf(w, `{"error": "scripted failure"}`)
			return
		}

		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string { return m.server.URL }

// Close shuts down the mock server.
func (m *MockUpstream) Close() { m.server.Close() }

// Reset clears tracking counters and scripted failures.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = 0
	m.failures = 0
	m.lastBody = nil
	m.lastPath = ""
}

// FailNext makes the next n requests fail with the given status.
// n < 0 fails every request until Reset.
func (m *MockUpstream) FailNext(n, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
	m.failWith = status
}

// RequestCount returns the number of requests received.
func (m *MockUpstream) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// LastBody returns the body of the most recent request.
func (m *MockUpstream) LastBody() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastBody
}

// SetHandler installs a custom handler for a specific path, e.g.
// "/engines/panchanga/calculate".
func (m *MockUpstream) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse scripts a simple response for a path.
func (m *MockUpstream) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetEngineResult scripts a successful calculate response for one engine.
func (m *MockUpstream) SetEngineResult(engineID string, result any) {
	payload, _ := json.Marshal(result)
	body, _ := json.Marshal(map[string]any{
		"engine_id": engineID,
		"result":    json.RawMessage(payload),
		"metadata": map[string]any{
			"backend":             "authoritative",
			"precision":           "high",
			"calculation_time_ms": 12.5,
		},
	})
	m.SetResponse("/engines/"+engineID+"/calculate", MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(body),
	})
}

// defaultHandler answers any calculate path with a canned longitude.
func (m *MockUpstream) defaultHandler(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	engineID := "unknown"
	if len(parts) == 3 && parts[0] == "engines" && parts[2] == "calculate" {
		engineID = parts[1]
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"engine_id": %q, "result": {"longitude": 123.456, "julian_day": 2460000.5}, "metadata": {"backend": "authoritative", "precision": "high", "calculation_time_ms": 8.2}}`, engineID)
}
