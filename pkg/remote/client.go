package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/siderium/astrocalc/pkg/breaker"
	"github.com/siderium/astrocalc/pkg/engine"
	"github.com/siderium/astrocalc/pkg/quota"
)

var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astro_upstream_requests_total",
		Help: "Calls to the authoritative API by engine and outcome",
	}, []string{"engine", "outcome"}) // "success", "error", "rejected"

	upstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "astro_upstream_request_duration_seconds",
		Help:    "Authoritative API call duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"engine"})

	fallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astro_fallback_total",
		Help: "Calls answered by the local fallback after a primary failure",
	}, []string{"engine", "outcome"}) // "success", "error"
)

// ClientConfig holds the resilient client configuration.
type ClientConfig struct {
	// BaseURL is the authoritative API root, without trailing slash.
	BaseURL string `yaml:"base_url"`

	// APIKey is sent as a bearer token when non-empty.
	APIKey string `yaml:"api_key"`

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration `yaml:"timeout"`

	// UserAgent identifies this client to the upstream.
	UserAgent string `yaml:"user_agent"`

	Retry   RetryConfig    `yaml:"retry"`
	Quota   quota.Config   `yaml:"quota"`
	Breaker breaker.Config `yaml:"breaker"`
}

// DefaultClientConfig returns the stock client tuning.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:   15 * time.Second,
		UserAgent: "astrocalc/1.0",
		Retry:     DefaultRetryConfig(),
		Quota:     quota.DefaultConfig(),
		Breaker:   breaker.DefaultConfig(),
	}
}

// Status aggregates the resilience state of the client for the stats
// endpoint.
type Status struct {
	Quota   quota.Status   `json:"quota"`
	Breaker breaker.Status `json:"breaker"`
}

// Client calls the authoritative ephemeris API with the full resilience
// chain in front of the network: circuit breaker, then rate budget, then
// HTTP with retry, then the local fallback. It implements engine.Backend
// under the name "authoritative".
type Client struct {
	cfg      ClientConfig
	http     *http.Client
	budget   *quota.Budget
	breaker  *breaker.Breaker
	fallback engine.Backend
	logger   zerolog.Logger
}

// NewClient builds the resilient client. fallback may be nil, in which
// case primary failures surface directly.
func NewClient(cfg ClientConfig, fallback engine.Backend, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	budget, err := quota.NewBudget("authoritative", cfg.Quota, logger)
	if err != nil {
		return nil, fmt.Errorf("creating rate budget: %w", err)
	}

	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		budget:   budget,
		breaker:  breaker.New("authoritative", cfg.Breaker, logger),
		fallback: fallback,
		logger:   logger.With().Str("component", "remote-client").Logger(),
	}, nil
}

// Name implements engine.Backend.
func (c *Client) Name() string { return "authoritative" }

// Supports implements engine.Backend. The authoritative API carries the
// full engine catalog, so every engine is accepted.
func (c *Client) Supports(string) bool { return true }

// Calculate implements engine.Backend. The order of the gates matters:
// an open circuit must not consume quota, and a rejected quota must not
// touch the network.
func (c *Client) Calculate(ctx context.Context, req engine.Request) (*engine.Result, error) {
	result, err := c.calculatePrimary(ctx, req)
	if err == nil {
		return result, nil
	}

	if c.fallback == nil || !c.fallback.Supports(req.EngineID) {
		return nil, err
	}

	c.logger.Warn().
		Str("engine", req.EngineID).
		Err(err).
		Msg("Primary call failed, dispatching to local fallback")

	fbResult, fbErr := c.fallback.Calculate(ctx, req)
	if fbErr != nil {
		fallbackTotal.WithLabelValues(req.EngineID, "error").Inc()
		return nil, &engine.FallbackError{
			EngineID: req.EngineID,
			Primary:  err,
			Fallback: fbErr,
		}
	}

	fallbackTotal.WithLabelValues(req.EngineID, "success").Inc()
	fbResult.Meta.Backend = "fallback"
	return fbResult, nil
}

// calculatePrimary runs the gated network path: breaker, budget, then
// HTTP with retry.
func (c *Client) calculatePrimary(ctx context.Context, req engine.Request) (*engine.Result, error) {
	if err := c.breaker.Allow(); err != nil {
		upstreamRequestsTotal.WithLabelValues(req.EngineID, "rejected").Inc()
		return nil, err
	}

	if err := c.budget.Acquire(); err != nil {
		upstreamRequestsTotal.WithLabelValues(req.EngineID, "rejected").Inc()
		// A quota rejection says nothing about upstream health, and the
		// network was never attempted: a half-open probe slot claimed by
		// Allow above must be handed back or no later call can probe.
		c.breaker.CancelProbe()
		return nil, err
	}

	start := time.Now()
	var resp *CalculateResponse
	err := retryWithBackoff(ctx, c.cfg.Retry, func() error {
		var attemptErr error
		resp, attemptErr = c.doCalculate(ctx, req)
		return attemptErr
	}, errorClassOf)
	upstreamDuration.WithLabelValues(req.EngineID).Observe(time.Since(start).Seconds())

	if err != nil {
		upstreamRequestsTotal.WithLabelValues(req.EngineID, "error").Inc()
		c.breaker.RecordFailure()
		if errorClassOf(err) == ErrorClassNetwork {
			// The upstream never saw the call; the token is still ours.
			c.budget.Release()
		}
		return nil, &engine.CalculationError{
			EngineID: req.EngineID,
			Backend:  c.Name(),
			Err:      err,
		}
	}

	upstreamRequestsTotal.WithLabelValues(req.EngineID, "success").Inc()
	c.breaker.RecordSuccess()

	return &engine.Result{
		EngineID: resp.EngineID,
		Data:     resp.Result,
		Meta: engine.Metadata{
			Backend:   c.Name(),
			Precision: engine.Precision(resp.Metadata.Precision),
			Elapsed:   time.Since(start),
			Timestamp: time.Now().UTC(),
		},
	}, nil
}

// doCalculate performs one HTTP attempt.
func (c *Client) doCalculate(ctx context.Context, req engine.Request) (*CalculateResponse, error) {
	envelope := NewEnvelope(req, uuid.NewString())
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, &APIError{Class: ErrorClassClient, Message: "encoding request", Err: err}
	}

	url := fmt.Sprintf("%s/engines/%s/calculate", c.cfg.BaseURL, req.EngineID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &APIError{Class: ErrorClassClient, Message: "building request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &APIError{Class: ErrorClassNetwork, Message: "transport failure", Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, &APIError{
			StatusCode: httpResp.StatusCode,
			Class:      classify(httpResp.StatusCode, nil),
			Message:    string(msg),
		}
	}

	var resp CalculateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, &APIError{
			StatusCode: httpResp.StatusCode,
			Class:      ErrorClassServer,
			Message:    "decoding response",
			Err:        err,
		}
	}
	if resp.EngineID == "" {
		resp.EngineID = req.EngineID
	}
	return &resp, nil
}

// Status snapshots the resilience state.
func (c *Client) Status() Status {
	return Status{
		Quota:   c.budget.Status(),
		Breaker: c.breaker.Status(),
	}
}

// errorClassOf extracts the error class from a (possibly wrapped)
// APIError; unknown failures are treated as network-class.
func errorClassOf(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}
	return ErrorClassNetwork
}
