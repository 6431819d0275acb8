// Package metrics documents the Prometheus metrics exported by the
// calculation pipeline. The metrics themselves are defined in their
// respective packages (cache, quota, breaker, remote, router, workflow,
// orchestrator) to maintain modularity and avoid circular dependencies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the pipeline.
// All metrics are automatically registered via promauto in their
// respective packages and exposed by cmd/astro-server on /metrics.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/orchestrator):
//   - astro_requests_total{engine, outcome} (Counter): Requests by engine and outcome (hit, computed, error)
//   - astro_request_duration_seconds{engine} (Histogram): End-to-end latency including cache lookups
//   - astro_singleflight_shared_total{engine} (Counter): Requests that piggybacked on an in-flight computation
//
// Cache Metrics (pkg/cache):
//   - astro_cache_hits_total{tier} (Counter): Hits by tier (memory, redis, disk)
//   - astro_cache_misses_total (Counter): Full misses across all tiers
//   - astro_cache_errors_total{tier, operation} (Counter): Tier operation errors that were skipped
//   - astro_cache_evictions_total{tier} (Counter): Capacity evictions
//   - astro_cache_promotions_total{tier} (Counter): Entries promoted into a faster tier
//
// Quota Metrics (pkg/quota):
//   - astro_quota_remaining{dependency} (Gauge): Calls remaining in the current daily window
//   - astro_quota_rejections_total{dependency, reason} (Counter): Pre-flight rejections (exhausted, spacing)
//   - astro_quota_consumed_total{dependency} (Counter): Quota tokens consumed
//
// Breaker Metrics (pkg/breaker):
//   - astro_breaker_trips_total{dependency} (Counter): Transitions into the open state
//   - astro_breaker_rejections_total{dependency} (Counter): Calls rejected while open
//   - astro_breaker_state{dependency} (Gauge): Current state (0 closed, 1 open, 2 half-open)
//
// Upstream Metrics (pkg/remote):
//   - astro_upstream_requests_total{engine, outcome} (Counter): Calls by outcome (success, error, rejected)
//   - astro_upstream_request_duration_seconds{engine} (Histogram): Authoritative API call duration
//   - astro_upstream_retries_total{error_class} (Counter): Retry attempts by error class
//   - astro_upstream_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - astro_upstream_retry_exhausted_total{error_class} (Counter): Calls that exhausted max retries
//   - astro_fallback_total{engine, outcome} (Counter): Local fallback dispatches after a primary failure
//
// Router Metrics (pkg/router):
//   - astro_route_decisions_total{route, reason} (Counter): Routing decisions
//   - astro_validation_failures_total{engine} (Counter): Cross-validation disagreements beyond tolerance
//
// Workflow Metrics (pkg/workflow):
//   - astro_workflow_runs_total{workflow, outcome} (Counter): Runs by outcome (success, degraded, error)
//   - astro_workflow_duration_seconds{workflow} (Histogram): End-to-end workflow execution time
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(astro_cache_hits_total[5m])) /
//   (sum(rate(astro_cache_hits_total[5m])) + sum(rate(astro_cache_misses_total[5m])))
//
//   # Upstream Quota Pressure
//   astro_quota_remaining < 10
//
//   # Fallback Rate
//   rate(astro_fallback_total[5m]) / rate(astro_upstream_requests_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(astro_request_duration_seconds_bucket[5m]))
