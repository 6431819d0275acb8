package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/siderium/astrocalc/pkg/engine"
)

// Bridge adapts an out-of-process engine host that speaks the same wire
// contract as the authoritative API. Unlike Client it carries no quota
// or circuit breaker: the host is a co-deployed sidecar, not a metered
// third party.
type Bridge struct {
	name     string
	baseURL  string
	http     *http.Client
	engines  map[string]struct{}
	logger   zerolog.Logger
}

// NewBridge creates a bridge to the host at baseURL serving the listed
// engine IDs.
func NewBridge(name, baseURL string, engines []string, timeout time.Duration, logger zerolog.Logger) *Bridge {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	supported := make(map[string]struct{}, len(engines))
	for _, id := range engines {
		supported[id] = struct{}{}
	}
	return &Bridge{
		name:    name,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		engines: supported,
		logger:  logger.With().Str("component", "bridge").Str("host", name).Logger(),
	}
}

// Name implements engine.Backend.
func (b *Bridge) Name() string { return b.name }

// Supports implements engine.Backend.
func (b *Bridge) Supports(engineID string) bool {
	_, ok := b.engines[engineID]
	return ok
}

// Calculate implements engine.Backend.
func (b *Bridge) Calculate(ctx context.Context, req engine.Request) (*engine.Result, error) {
	if !b.Supports(req.EngineID) {
		return nil, fmt.Errorf("%w: engine %q not hosted by %s",
			engine.ErrEngineUnavailable, req.EngineID, b.name)
	}

	start := time.Now()
	envelope := NewEnvelope(req, uuid.NewString())
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, &engine.CalculationError{EngineID: req.EngineID, Backend: b.name, Err: err}
	}

	url := fmt.Sprintf("%s/engines/%s/calculate", b.baseURL, req.EngineID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &engine.CalculationError{EngineID: req.EngineID, Backend: b.name, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := b.http.Do(httpReq)
	if err != nil {
		return nil, &engine.CalculationError{EngineID: req.EngineID, Backend: b.name, Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, &engine.CalculationError{
			EngineID: req.EngineID,
			Backend:  b.name,
			Err: &APIError{
				StatusCode: httpResp.StatusCode,
				Class:      classify(httpResp.StatusCode, nil),
				Message:    string(msg),
			},
		}
	}

	var resp CalculateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, &engine.CalculationError{EngineID: req.EngineID, Backend: b.name, Err: err}
	}

	b.logger.Debug().
		Str("engine", req.EngineID).
		Dur("elapsed", time.Since(start)).
		Msg("Bridge calculation complete")

	return &engine.Result{
		EngineID: req.EngineID,
		Data:     resp.Result,
		Meta: engine.Metadata{
			Backend:   b.name,
			Precision: engine.Precision(resp.Metadata.Precision),
			Elapsed:   time.Since(start),
			Timestamp: time.Now().UTC(),
		},
	}, nil
}
