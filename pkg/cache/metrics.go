package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Hits tracks cache hits by tier.
	Hits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astro_cache_hits_total",
			Help: "Total number of result cache hits",
		},
		[]string{"tier"}, // "memory", "redis", "disk"
	)

	// Misses tracks full cache misses (no tier had the fingerprint).
	Misses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "astro_cache_misses_total",
			Help: "Total number of result cache misses across all tiers",
		},
	)

	// Errors tracks tier operation failures that were skipped over.
	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astro_cache_errors_total",
			Help: "Total number of cache tier operation errors",
		},
		[]string{"tier", "operation"}, // "get", "put", "delete"
	)

	// Evictions tracks capacity evictions by tier.
	Evictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astro_cache_evictions_total",
			Help: "Total number of entries evicted for capacity",
		},
		[]string{"tier"},
	)

	// Promotions tracks hits copied back into faster tiers.
	Promotions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astro_cache_promotions_total",
			Help: "Total number of entries promoted into a faster tier",
		},
		[]string{"tier"}, // tier the entry was promoted into
	)
)
