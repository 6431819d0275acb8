// Package breaker implements a three-state circuit breaker guarding a
// failing external dependency. State transitions follow exactly
// Closed -> Open -> HalfOpen -> {Closed | Open}; no other edges exist.
package breaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/siderium/astrocalc/pkg/engine"
)

var (
	breakerTripsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astro_breaker_trips_total",
		Help: "Circuit breaker transitions into the open state",
	}, []string{"dependency"})

	breakerRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astro_breaker_rejections_total",
		Help: "Calls rejected while the circuit was open",
	}, []string{"dependency"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "astro_breaker_state",
		Help: "Current circuit state (0 closed, 1 open, 2 half-open)",
	}, []string{"dependency"})
)

// State is the circuit position.
type State int

const (
	// Closed lets calls through; failures are counted.
	Closed State = iota
	// Open rejects calls without attempting the network.
	Open
	// HalfOpen admits exactly one probe call after the cooldown.
	HalfOpen
)

// String returns the state name used in logs and stats.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds the breaker tuning parameters. The threshold and cooldown
// are operational tuning values, not architectural constants.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit.
	FailureThreshold int `yaml:"failure_threshold"`

	// Cooldown is how long the circuit stays open before admitting a
	// probe.
	Cooldown time.Duration `yaml:"cooldown"`

	// MaxCooldown caps the backoff applied when a probe fails and the
	// circuit re-opens.
	MaxCooldown time.Duration `yaml:"max_cooldown"`
}

// DefaultConfig returns the stock tuning: open after 5 consecutive
// failures, cool down 30s, backoff capped at 5 minutes.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		MaxCooldown:      5 * time.Minute,
	}
}

// Status is a point-in-time snapshot for the stats endpoint.
type Status struct {
	Dependency          string    `json:"dependency"`
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastTransition      time.Time `json:"last_transition"`
	Cooldown            time.Duration `json:"cooldown_ns"`
}

// Breaker guards one external dependency. Process-wide shared state:
// create once at startup and inject it.
type Breaker struct {
	dependency string
	cfg        Config
	logger     zerolog.Logger

	mu             sync.Mutex
	state          State
	failures       int
	cooldown       time.Duration
	lastTransition time.Time
	probeInFlight  bool
	now            func() time.Time // test hook
}

// New creates a closed breaker for the named dependency.
func New(dependency string, cfg Config, logger zerolog.Logger) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.MaxCooldown < cfg.Cooldown {
		cfg.MaxCooldown = cfg.Cooldown
	}
	b := &Breaker{
		dependency: dependency,
		cfg:        cfg,
		cooldown:   cfg.Cooldown,
		logger:     logger.With().Str("component", "breaker").Str("dependency", dependency).Logger(),
		now:        time.Now,
	}
	b.lastTransition = b.now()
	breakerState.WithLabelValues(dependency).Set(float64(Closed))
	return b
}

// Allow decides whether a call may proceed. While open it rejects with
// engine.ErrCircuitOpen until the cooldown elapses, then transitions to
// half-open and admits exactly one probe.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return nil

	case Open:
		if b.now().Sub(b.lastTransition) < b.cooldown {
			breakerRejectionsTotal.WithLabelValues(b.dependency).Inc()
			return fmt.Errorf("%w: cooling down until %s",
				engine.ErrCircuitOpen, b.lastTransition.Add(b.cooldown).Format(time.RFC3339))
		}
		b.transitionLocked(HalfOpen)
		b.probeInFlight = true
		b.logger.Info().Msg("Circuit half-open, admitting probe call")
		return nil

	case HalfOpen:
		if b.probeInFlight {
			breakerRejectionsTotal.WithLabelValues(b.dependency).Inc()
			return fmt.Errorf("%w: probe already in flight", engine.ErrCircuitOpen)
		}
		b.probeInFlight = true
		return nil
	}
	return nil
}

// CancelProbe releases the half-open probe slot when an admitted probe
// was aborted before reaching the network (a quota rejection, for
// example). The aborted call says nothing about upstream health, so the
// circuit stays half-open and the next Allow admits a fresh probe.
func (b *Breaker) CancelProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == HalfOpen {
		b.probeInFlight = false
	}
}

// RecordSuccess resets the failure counter; a successful half-open probe
// closes the circuit and restores the base cooldown.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.probeInFlight = false
		b.failures = 0
		b.cooldown = b.cfg.Cooldown
		b.transitionLocked(Closed)
		b.logger.Info().Msg("Circuit closed after successful probe")
	}
}

// RecordFailure counts a failure. Reaching the threshold in closed state
// trips the circuit; a failed half-open probe re-opens it with doubled
// cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transitionLocked(Open)
			breakerTripsTotal.WithLabelValues(b.dependency).Inc()
			b.logger.Error().
				Int("consecutive_failures", b.failures).
				Dur("cooldown", b.cooldown).
				Msg("Circuit opened")
		}
	case HalfOpen:
		b.probeInFlight = false
		b.cooldown = min(b.cooldown*2, b.cfg.MaxCooldown)
		b.transitionLocked(Open)
		breakerTripsTotal.WithLabelValues(b.dependency).Inc()
		b.logger.Warn().
			Dur("cooldown", b.cooldown).
			Msg("Probe failed, circuit re-opened with backoff")
	}
}

// State returns the current circuit position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Status snapshots the breaker for the stats endpoint.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		Dependency:          b.dependency,
		State:               b.state.String(),
		ConsecutiveFailures: b.failures,
		LastTransition:      b.lastTransition,
		Cooldown:            b.cooldown,
	}
}

func (b *Breaker) transitionLocked(to State) {
	b.state = to
	b.lastTransition = b.now()
	breakerState.WithLabelValues(b.dependency).Set(float64(to))
}
