// Package router decides which backend answers a calculation and runs
// the chosen route. Precision drives the decision: standard work stays
// local, high-precision work goes to the authoritative API, and
// validated work runs on both backends and cross-checks the results.
package router

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/siderium/astrocalc/pkg/astro"
	"github.com/siderium/astrocalc/pkg/engine"
)

var (
	routeDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astro_route_decisions_total",
		Help: "Routing decisions by route and reason",
	}, []string{"route", "reason"})

	validationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astro_validation_failures_total",
		Help: "Cross-validation runs where backends disagreed beyond tolerance",
	}, []string{"engine"})
)

// Route names the execution strategy for one request.
type Route string

const (
	// RouteLocal answers from the in-process engines.
	RouteLocal Route = "local"
	// RouteAuthoritative answers from the external API.
	RouteAuthoritative Route = "authoritative"
	// RouteBoth runs both backends concurrently and cross-validates.
	RouteBoth Route = "both"
)

// Reason codes explaining a routing decision, surfaced in logs and
// result provenance.
const (
	ReasonUnsupportedLocally = "unsupported_locally"
	ReasonStandardPrecision  = "standard_precision"
	ReasonHighPrecision      = "high_precision"
	ReasonValidated          = "validated"
)

// Decision is the outcome of Select.
type Decision struct {
	Route  Route
	Reason string
}

// DefaultTolerance is the maximum longitude disagreement, in degrees,
// accepted between backends in validated mode. The local routines are
// low-precision series good to roughly 0.01 degrees.
const DefaultTolerance = 0.01

// Config holds the router tuning.
type Config struct {
	// Tolerance is the validated-mode agreement threshold in degrees.
	Tolerance float64 `yaml:"tolerance"`
}

// Router selects and executes backend routes.
type Router struct {
	local     engine.Backend
	authority engine.Backend
	tolerance float64
	logger    zerolog.Logger
}

// New creates a router over the local and authoritative backends.
func New(local, authority engine.Backend, cfg Config, logger zerolog.Logger) *Router {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	return &Router{
		local:     local,
		authority: authority,
		tolerance: cfg.Tolerance,
		logger:    logger.With().Str("component", "router").Logger(),
	}
}

// Select applies the decision table. Local support is checked first:
// precision preferences cannot route an engine to a backend that does
// not implement it.
func (r *Router) Select(req engine.Request) Decision {
	var d Decision
	switch {
	case !r.local.Supports(req.EngineID):
		d = Decision{RouteAuthoritative, ReasonUnsupportedLocally}
	case req.Precision == engine.PrecisionHigh:
		d = Decision{RouteAuthoritative, ReasonHighPrecision}
	case req.Precision == engine.PrecisionValidated:
		d = Decision{RouteBoth, ReasonValidated}
	default:
		d = Decision{RouteLocal, ReasonStandardPrecision}
	}
	routeDecisionsTotal.WithLabelValues(string(d.Route), d.Reason).Inc()
	return d
}

// Execute runs the route selected for the request.
func (r *Router) Execute(ctx context.Context, req engine.Request) (*engine.Result, error) {
	decision := r.Select(req)

	r.logger.Debug().
		Str("engine", req.EngineID).
		Str("route", string(decision.Route)).
		Str("reason", decision.Reason).
		Msg("Route selected")

	switch decision.Route {
	case RouteLocal:
		return r.local.Calculate(ctx, req)
	case RouteAuthoritative:
		return r.authority.Calculate(ctx, req)
	case RouteBoth:
		return r.executeBoth(ctx, req)
	default:
		return nil, fmt.Errorf("unknown route %q", decision.Route)
	}
}

// executeBoth runs both backends concurrently, waits for both, and
// compares the primary longitude fields. Agreement confirms the local
// result, which is returned; disagreement returns a ValidationError
// that carries both results so the caller can decide.
func (r *Router) executeBoth(ctx context.Context, req engine.Request) (*engine.Result, error) {
	var localResult, authResult *engine.Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := r.local.Calculate(gctx, req)
		if err != nil {
			return fmt.Errorf("local backend: %w", err)
		}
		localResult = res
		return nil
	})
	g.Go(func() error {
		res, err := r.authority.Calculate(gctx, req)
		if err != nil {
			return fmt.Errorf("authoritative backend: %w", err)
		}
		authResult = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, &engine.CalculationError{EngineID: req.EngineID, Backend: "both", Err: err}
	}

	localLon := astro.ExtractLongitude(localResult.Data)
	authLon := astro.ExtractLongitude(authResult.Data)

	// Engines without a longitude field (numerology, biorhythm) cannot
	// be numerically cross-checked; the authoritative answer stands.
	if math.IsNaN(localLon) || math.IsNaN(authLon) {
		return r.markValidated(authResult), nil
	}

	if delta := angularDelta(localLon, authLon); delta > r.tolerance {
		validationFailuresTotal.WithLabelValues(req.EngineID).Inc()
		r.logger.Warn().
			Str("engine", req.EngineID).
			Float64("local", localLon).
			Float64("authoritative", authLon).
			Float64("delta", delta).
			Float64("tolerance", r.tolerance).
			Msg("Cross-validation failed, backends disagree")
		return nil, &engine.ValidationError{
			EngineID:        req.EngineID,
			Field:           "longitude",
			Local:           localLon,
			Authority:       authLon,
			Tolerance:       r.tolerance,
			LocalResult:     localResult,
			AuthorityResult: authResult,
		}
	}

	// The cross-check confirmed the local computation, so its payload is
	// the one handed back.
	return r.markValidated(localResult), nil
}

// markValidated relabels a backend result as the validated-route answer.
func (r *Router) markValidated(res *engine.Result) *engine.Result {
	validated := *res
	validated.Meta.Backend = "validated"
	validated.Meta.Precision = engine.PrecisionValidated
	validated.Meta.Timestamp = time.Now().UTC()
	return &validated
}

// angularDelta is the smallest separation between two longitudes on the
// circle, so 359.99 and 0.01 compare as 0.02 apart.
func angularDelta(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 180 {
		d = 360 - d
	}
	return d
}
