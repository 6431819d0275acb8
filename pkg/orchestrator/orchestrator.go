// Package orchestrator is the calculation core: it deduplicates
// concurrent identical requests, consults the multi-tier cache, routes
// misses to a backend and writes fresh results back through the cache.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/siderium/astrocalc/pkg/cache"
	"github.com/siderium/astrocalc/pkg/engine"
	"github.com/siderium/astrocalc/pkg/router"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astro_requests_total",
		Help: "Calculation requests by engine and outcome",
	}, []string{"engine", "outcome"}) // "hit", "computed", "error"

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "astro_request_duration_seconds",
		Help:    "End-to-end calculation latency including cache lookups",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
	}, []string{"engine"})

	singleflightSharedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astro_singleflight_shared_total",
		Help: "Requests that piggybacked on an in-flight identical computation",
	}, []string{"engine"})
)

// DefaultTimeout bounds one calculation end to end.
const DefaultTimeout = 30 * time.Second

// Config holds the orchestrator tuning.
type Config struct {
	// Timeout is the per-request deadline; zero means DefaultTimeout.
	Timeout time.Duration `yaml:"timeout"`
}

// Status is the orchestrator snapshot for the stats endpoint.
type Status struct {
	Cache   cache.Stats   `json:"cache"`
	Engines []engine.Info `json:"engines"`
}

// Orchestrator coordinates one calculation pipeline. Safe for concurrent
// use; create one per process.
type Orchestrator struct {
	cache   *cache.Manager
	router  *router.Router
	timeout time.Duration
	logger  zerolog.Logger
	sf      singleflight.Group

	mu       sync.RWMutex
	registry map[string]engine.Info
}

// New creates an orchestrator over the cache and router, with the given
// engines registered.
func New(cacheMgr *cache.Manager, rt *router.Router, engines []engine.Info, cfg Config, logger zerolog.Logger) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	o := &Orchestrator{
		cache:    cacheMgr,
		router:   rt,
		timeout:  cfg.Timeout,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
		registry: make(map[string]engine.Info),
	}
	for _, info := range engines {
		o.Register(info)
	}
	return o
}

// Register adds a calculation type to the catalog. Engines registered
// without a freshness class default to daily.
func (o *Orchestrator) Register(info engine.Info) {
	if info.Freshness == "" {
		info.Freshness = engine.FreshnessDaily
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.registry[info.ID] = info
}

// Catalog lists the registered engines, sorted by ID.
func (o *Orchestrator) Catalog() []engine.Info {
	o.mu.RLock()
	defer o.mu.RUnlock()
	engines := make([]engine.Info, 0, len(o.registry))
	for _, info := range o.registry {
		engines = append(engines, info)
	}
	sort.Slice(engines, func(i, j int) bool { return engines[i].ID < engines[j].ID })
	return engines
}

// lookup returns the catalog entry for an engine ID.
func (o *Orchestrator) lookup(engineID string) (engine.Info, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	info, ok := o.registry[engineID]
	return info, ok
}

// Calculate runs the full pipeline for one request: fingerprint, cache
// lookup, single-flight deduplication, backend routing, write-back.
// Identical concurrent requests trigger exactly one computation.
func (o *Orchestrator) Calculate(ctx context.Context, req engine.Request) (*engine.Result, error) {
	start := time.Now()

	info, ok := o.lookup(req.EngineID)
	if !ok {
		requestsTotal.WithLabelValues(req.EngineID, "error").Inc()
		return nil, fmt.Errorf("%w: %q", engine.ErrEngineUnavailable, req.EngineID)
	}
	if !req.Precision.Valid() {
		requestsTotal.WithLabelValues(req.EngineID, "error").Inc()
		return nil, fmt.Errorf("invalid precision %q", req.Precision)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	fp := engine.FingerprintOf(req)
	requestID := uuid.NewString()
	logger := o.logger.With().
		Str("request_id", requestID).
		Str("engine", req.EngineID).
		Str("fingerprint", fp.Short()).
		Logger()

	if result, ok := o.fromCache(ctx, fp); ok {
		requestsTotal.WithLabelValues(req.EngineID, "hit").Inc()
		requestDuration.WithLabelValues(req.EngineID).Observe(time.Since(start).Seconds())
		logger.Debug().Str("backend", result.Meta.Backend).Msg("Served from cache")
		return result, nil
	}

	v, err, shared := o.sf.Do(string(fp), func() (any, error) {
		// A concurrent leader may have stored the result between our
		// miss and this call winning the flight.
		if result, ok := o.fromCache(ctx, fp); ok {
			return result, nil
		}
		return o.compute(ctx, req, info, logger)
	})
	if shared {
		singleflightSharedTotal.WithLabelValues(req.EngineID).Inc()
	}

	requestDuration.WithLabelValues(req.EngineID).Observe(time.Since(start).Seconds())

	if err != nil {
		requestsTotal.WithLabelValues(req.EngineID, "error").Inc()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &engine.TimeoutError{EngineID: req.EngineID, Deadline: o.timeout}
		}
		return nil, err
	}

	requestsTotal.WithLabelValues(req.EngineID, "computed").Inc()

	// Followers share the leader's pointer; hand each caller its own copy
	// so metadata mutation cannot race.
	result := *(v.(*engine.Result))
	return &result, nil
}

// compute routes the request to a backend and writes the result through
// the cache.
func (o *Orchestrator) compute(ctx context.Context, req engine.Request, info engine.Info, logger zerolog.Logger) (*engine.Result, error) {
	result, err := o.router.Execute(ctx, req)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, &engine.CalculationError{EngineID: req.EngineID, Backend: result.Meta.Backend, Err: err}
	}
	fp := engine.FingerprintOf(req)
	o.cache.Store(ctx, fp, payload, info.Freshness)

	logger.Info().
		Str("backend", result.Meta.Backend).
		Str("freshness", string(info.Freshness)).
		Dur("elapsed", result.Meta.Elapsed).
		Msg("Calculation complete")

	return result, nil
}

// fromCache attempts to rebuild a result from a cached entry. The entry
// stores the full result, so provenance (original backend, precision)
// survives the round-trip.
func (o *Orchestrator) fromCache(ctx context.Context, fp engine.Fingerprint) (*engine.Result, bool) {
	entry, err := o.cache.Get(ctx, fp)
	if err != nil {
		return nil, false
	}
	var result engine.Result
	if err := json.Unmarshal(entry.Data, &result); err != nil {
		// A corrupt entry must not poison future lookups.
		o.logger.Warn().Err(err).Str("fingerprint", fp.Short()).Msg("Dropping undecodable cache entry")
		o.cache.Invalidate(ctx, fp)
		return nil, false
	}
	result.Meta.Cached = true
	return &result, true
}

// Invalidate removes the cached result for a request from every tier.
func (o *Orchestrator) Invalidate(ctx context.Context, req engine.Request) {
	o.cache.Invalidate(ctx, engine.FingerprintOf(req))
}

// ClearCache drops every cached result.
func (o *Orchestrator) ClearCache(ctx context.Context) {
	o.cache.Clear(ctx)
}

// Status snapshots the orchestrator for the stats endpoint.
func (o *Orchestrator) Status() Status {
	return Status{
		Cache:   o.cache.Stats(),
		Engines: o.Catalog(),
	}
}
