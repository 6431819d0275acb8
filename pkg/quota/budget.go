// Package quota enforces the rate budget of a quota-limited external
// dependency: a fixed daily call allowance with a safety reserve and a
// minimum inter-call spacing. The window resets at UTC midnight.
package quota

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/siderium/astrocalc/pkg/engine"
)

var (
	quotaRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "astro_quota_remaining",
		Help: "Calls remaining in the current daily window (reserve excluded)",
	}, []string{"dependency"})

	quotaRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astro_quota_rejections_total",
		Help: "Calls rejected pre-flight by the rate budget",
	}, []string{"dependency", "reason"}) // "exhausted", "spacing"

	quotaConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astro_quota_consumed_total",
		Help: "Quota tokens consumed",
	}, []string{"dependency"})
)

// Config holds the budget parameters for one external dependency.
type Config struct {
	// DailyLimit is the hard quota per UTC day.
	DailyLimit int `yaml:"daily_limit"`

	// Reserve is held back from the quota as a safety margin; the budget
	// rejects once consumed reaches DailyLimit - Reserve.
	Reserve int `yaml:"reserve"`

	// MinInterval is the minimum spacing between consecutive calls.
	MinInterval time.Duration `yaml:"min_interval"`
}

// DefaultConfig matches the free-plan limits of the upstream ephemeris
// API: 50 calls/day, 5 held back, one call per second.
func DefaultConfig() Config {
	return Config{
		DailyLimit:  50,
		Reserve:     5,
		MinInterval: time.Second,
	}
}

// Status is a point-in-time snapshot of the budget.
type Status struct {
	Dependency string    `json:"dependency"`
	DailyLimit int       `json:"daily_limit"`
	Reserve    int       `json:"reserve"`
	Consumed   int       `json:"consumed"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
}

// Budget tracks consumption against one dependency's quota. It is
// process-wide shared state: create one at startup and inject it.
type Budget struct {
	dependency string
	cfg        Config
	logger     zerolog.Logger

	mu          sync.Mutex
	consumed    int
	windowStart time.Time
	spacing     *rate.Limiter
	now         func() time.Time // test hook
}

// NewBudget creates a budget for the named dependency.
func NewBudget(dependency string, cfg Config, logger zerolog.Logger) (*Budget, error) {
	if cfg.DailyLimit <= 0 {
		return nil, fmt.Errorf("daily limit must be positive (got %d)", cfg.DailyLimit)
	}
	if cfg.Reserve < 0 || cfg.Reserve >= cfg.DailyLimit {
		return nil, fmt.Errorf("reserve must be in [0, daily limit) (got %d)", cfg.Reserve)
	}

	b := &Budget{
		dependency: dependency,
		cfg:        cfg,
		logger:     logger.With().Str("component", "quota").Str("dependency", dependency).Logger(),
		now:        time.Now,
	}
	if cfg.MinInterval > 0 {
		b.spacing = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	b.windowStart = startOfUTCDay(b.now())
	quotaRemaining.WithLabelValues(dependency).Set(float64(b.usable()))

	b.logger.Info().
		Int("daily_limit", cfg.DailyLimit).
		Int("reserve", cfg.Reserve).
		Dur("min_interval", cfg.MinInterval).
		Msg("Rate budget initialized")

	return b, nil
}

// Acquire consumes one quota token or rejects immediately. No network
// attempt may be made after a rejection: both an exhausted budget and a
// violated minimum spacing return engine.ErrQuotaExceeded pre-flight.
func (b *Budget) Acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollWindowLocked()

	if b.consumed >= b.usable() {
		quotaRejectionsTotal.WithLabelValues(b.dependency, "exhausted").Inc()
		b.logger.Warn().
			Int("consumed", b.consumed).
			Int("usable", b.usable()).
			Msg("Daily quota exhausted, rejecting call")
		return fmt.Errorf("%w: %d/%d used (reserve %d)",
			engine.ErrQuotaExceeded, b.consumed, b.cfg.DailyLimit, b.cfg.Reserve)
	}

	if b.spacing != nil && !b.spacing.Allow() {
		quotaRejectionsTotal.WithLabelValues(b.dependency, "spacing").Inc()
		b.logger.Debug().Msg("Minimum call spacing not elapsed, rejecting call")
		return fmt.Errorf("%w: minimum spacing %s not elapsed",
			engine.ErrQuotaExceeded, b.cfg.MinInterval)
	}

	b.consumed++
	quotaConsumedTotal.WithLabelValues(b.dependency).Inc()
	quotaRemaining.WithLabelValues(b.dependency).Set(float64(b.usable() - b.consumed))
	return nil
}

// Release returns a token after a call that never reached the upstream
// (network failure before any quota was actually spent server-side).
func (b *Budget) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consumed > 0 {
		b.consumed--
		quotaRemaining.WithLabelValues(b.dependency).Set(float64(b.usable() - b.consumed))
	}
}

// Status snapshots the budget.
func (b *Budget) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollWindowLocked()
	return Status{
		Dependency: b.dependency,
		DailyLimit: b.cfg.DailyLimit,
		Reserve:    b.cfg.Reserve,
		Consumed:   b.consumed,
		Remaining:  b.usable() - b.consumed,
		ResetAt:    b.windowStart.Add(24 * time.Hour),
	}
}

// usable is the callable portion of the quota.
func (b *Budget) usable() int { return b.cfg.DailyLimit - b.cfg.Reserve }

// rollWindowLocked resets consumption when a new UTC day has started.
func (b *Budget) rollWindowLocked() {
	today := startOfUTCDay(b.now())
	if today.After(b.windowStart) {
		b.logger.Info().
			Int("consumed", b.consumed).
			Time("window_start", today).
			Msg("Daily quota window reset")
		b.windowStart = today
		b.consumed = 0
		quotaRemaining.WithLabelValues(b.dependency).Set(float64(b.usable()))
	}
}

func startOfUTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
