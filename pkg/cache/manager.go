package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/siderium/astrocalc/pkg/engine"
)

// TierStats is a hit/miss snapshot for one tier.
type TierStats struct {
	Tier   string `json:"tier"`
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Errors uint64 `json:"errors"`
}

// Stats aggregates per-tier counters for one manager instance.
type Stats struct {
	Tiers  []TierStats `json:"tiers"`
	Misses uint64      `json:"full_misses"`
}

// HitRate returns the fraction of lookups answered by any tier.
func (s Stats) HitRate() float64 {
	var hits uint64
	for _, t := range s.Tiers {
		hits += t.Hits
	}
	total := hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

type tierCounters struct {
	hits   atomic.Uint64
	misses atomic.Uint64
	errors atomic.Uint64
}

// Manager chains storage tiers. Lookup order is fixed at construction,
// fastest first. A hit short-circuits and promotes the entry into all
// faster tiers; a store writes through every tier. A failing tier never
// fails the request: the error is logged and counted, and the lookup
// moves on.
type Manager struct {
	tiers    []Tier
	counters []*tierCounters
	misses   atomic.Uint64
	shortTTL time.Duration
	logger   zerolog.Logger
}

// NewManager builds a manager over the given tiers, fastest first.
func NewManager(logger zerolog.Logger, shortTTL time.Duration, tiers ...Tier) *Manager {
	if len(tiers) == 0 {
		panic("cache manager needs at least one tier")
	}
	counters := make([]*tierCounters, len(tiers))
	for i := range counters {
		counters[i] = &tierCounters{}
	}
	return &Manager{
		tiers:    tiers,
		counters: counters,
		shortTTL: shortTTL,
		logger:   logger.With().Str("component", "cache").Logger(),
	}
}

// Get looks the fingerprint up tier by tier. On a hit the entry is
// promoted into every faster tier not yet holding it. Returns ErrMiss
// when no tier holds a live entry.
func (m *Manager) Get(ctx context.Context, fp engine.Fingerprint) (*Entry, error) {
	for i, tier := range m.tiers {
		entry, err := tier.Get(ctx, fp)
		if err == ErrMiss {
			m.counters[i].misses.Add(1)
			continue
		}
		if err != nil {
			m.counters[i].errors.Add(1)
			Errors.WithLabelValues(tier.Name(), "get").Inc()
			m.logger.Warn().Err(err).
				Str("tier", tier.Name()).
				Str("fingerprint", fp.Short()).
				Msg("cache tier unavailable, skipping")
			continue
		}

		m.counters[i].hits.Add(1)
		Hits.WithLabelValues(tier.Name()).Inc()
		m.promote(ctx, entry, i)
		return entry, nil
	}

	m.misses.Add(1)
	Misses.Inc()
	return nil, ErrMiss
}

// Store writes a freshly computed payload through every tier. Tier
// failures are logged and skipped; the entry is returned for callers
// that want the expiry metadata.
func (m *Manager) Store(ctx context.Context, fp engine.Fingerprint, data []byte, freshness engine.Freshness) *Entry {
	entry := NewEntry(fp, data, freshness, m.shortTTL)
	for i, tier := range m.tiers {
		if err := tier.Put(ctx, entry); err != nil {
			m.counters[i].errors.Add(1)
			Errors.WithLabelValues(tier.Name(), "put").Inc()
			m.logger.Warn().Err(err).
				Str("tier", tier.Name()).
				Str("fingerprint", fp.Short()).
				Msg("cache write failed, tier skipped")
		}
	}
	return entry
}

// Invalidate removes a fingerprint from every tier.
func (m *Manager) Invalidate(ctx context.Context, fp engine.Fingerprint) {
	for i, tier := range m.tiers {
		if err := tier.Delete(ctx, fp); err != nil {
			m.counters[i].errors.Add(1)
			Errors.WithLabelValues(tier.Name(), "delete").Inc()
			m.logger.Warn().Err(err).Str("tier", tier.Name()).Msg("cache delete failed")
		}
	}
}

// Clear drops every entry in every tier.
func (m *Manager) Clear(ctx context.Context) {
	for _, tier := range m.tiers {
		if err := tier.Clear(ctx); err != nil {
			m.logger.Warn().Err(err).Str("tier", tier.Name()).Msg("cache clear failed")
		}
	}
}

// Stats snapshots the per-tier counters.
func (m *Manager) Stats() Stats {
	s := Stats{Misses: m.misses.Load()}
	for i, tier := range m.tiers {
		s.Tiers = append(s.Tiers, TierStats{
			Tier:   tier.Name(),
			Hits:   m.counters[i].hits.Load(),
			Misses: m.counters[i].misses.Load(),
			Errors: m.counters[i].errors.Load(),
		})
	}
	return s
}

// ResetStats zeroes the snapshot counters. Prometheus counters are
// cumulative and left untouched.
func (m *Manager) ResetStats() {
	m.misses.Store(0)
	for _, c := range m.counters {
		c.hits.Store(0)
		c.misses.Store(0)
		c.errors.Store(0)
	}
}

// promote copies a hit into all faster tiers.
func (m *Manager) promote(ctx context.Context, entry *Entry, hitIndex int) {
	for i := 0; i < hitIndex; i++ {
		if err := m.tiers[i].Put(ctx, entry); err != nil {
			Errors.WithLabelValues(m.tiers[i].Name(), "put").Inc()
			m.logger.Debug().Err(err).
				Str("tier", m.tiers[i].Name()).
				Msg("cache promotion failed")
			continue
		}
		Promotions.WithLabelValues(m.tiers[i].Name()).Inc()
	}
}
