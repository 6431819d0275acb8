package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/siderium/astrocalc/internal/testutil"
	"github.com/siderium/astrocalc/pkg/astro"
	"github.com/siderium/astrocalc/pkg/breaker"
	"github.com/siderium/astrocalc/pkg/cache"
	"github.com/siderium/astrocalc/pkg/engine"
	"github.com/siderium/astrocalc/pkg/orchestrator"
	"github.com/siderium/astrocalc/pkg/quota"
	"github.com/siderium/astrocalc/pkg/remote"
	"github.com/siderium/astrocalc/pkg/router"
	"github.com/siderium/astrocalc/pkg/workflow"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})
	t.Cleanup(func() {
		redisClient.Close()
		container.Terminate(ctx)
	})

	return redisClient
}

// newPipeline assembles the full stack: memory+redis cache, local
// backend, resilient upstream client, router, orchestrator.
func newPipeline(t *testing.T, redisClient *redis.Client, upstreamURL string) (*orchestrator.Orchestrator, *remote.Client) {
	t.Helper()
	logger := zerolog.Nop()

	mgr := cache.NewManager(logger, cache.DefaultShortLivedTTL,
		cache.NewMemoryTier(0),
		cache.NewRedisTier(redisClient),
	)

	local := astro.NewBackend()

	cfg := remote.DefaultClientConfig()
	cfg.BaseURL = upstreamURL
	cfg.Timeout = 5 * time.Second
	cfg.Retry = remote.RetryConfig{MaxAttempts: 2, InitialBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond, BackoffMultiplier: 2}
	cfg.Quota = quota.Config{DailyLimit: 100, Reserve: 0}
	cfg.Breaker = breaker.Config{FailureThreshold: 10, Cooldown: time.Minute}

	client, err := remote.NewClient(cfg, local, logger)
	if err != nil {
		t.Fatalf("Failed to create upstream client: %v", err)
	}

	rt := router.New(local, client, router.Config{}, logger)
	return orchestrator.New(mgr, rt, astro.Catalog(), orchestrator.Config{}, logger), client
}

// TestFullCalculationFlow exercises the complete pipeline: cache miss,
// backend computation, write-through, then cache hit.
func TestFullCalculationFlow(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockUpstream()
	defer mock.Close()

	orch, _ := newPipeline(t, redisClient, mock.URL())
	ctx := context.Background()

	req := engine.NewRequest(astro.EnginePanchanga, map[string]string{
		"date": "2024-06-21",
	}, engine.PrecisionStandard)

	t.Log("Request 1: full flow - cache miss")
	first, err := orch.Calculate(ctx, req)
	if err != nil {
		t.Fatalf("Request 1 failed: %v", err)
	}
	if first.Meta.Cached {
		t.Error("first request should not be a cache hit")
	}
	if first.Meta.Backend != "local" {
		t.Errorf("standard precision backend = %q, want local", first.Meta.Backend)
	}

	t.Log("Request 2: served from cache")
	second, err := orch.Calculate(ctx, req)
	if err != nil {
		t.Fatalf("Request 2 failed: %v", err)
	}
	if !second.Meta.Cached {
		t.Error("second request should be a cache hit")
	}

	stats := orch.Status().Cache
	if stats.HitRate() <= 0 {
		t.Errorf("hit rate = %f, want > 0", stats.HitRate())
	}
}

// TestSharedRedisTierAcrossInstances verifies a second orchestrator
// instance over the same Redis sees results computed by the first.
func TestSharedRedisTierAcrossInstances(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockUpstream()
	defer mock.Close()

	first, _ := newPipeline(t, redisClient, mock.URL())
	second, _ := newPipeline(t, redisClient, mock.URL())
	ctx := context.Background()

	req := engine.NewRequest(astro.EngineSolarLongitude, map[string]string{
		"date": "2024-06-21",
	}, engine.PrecisionStandard)

	if _, err := first.Calculate(ctx, req); err != nil {
		t.Fatal(err)
	}

	// The second instance has a cold memory tier but shares Redis.
	result, err := second.Calculate(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Meta.Cached {
		t.Error("second instance should hit the shared Redis tier")
	}
}

// TestHighPrecisionRoutesUpstream verifies the authoritative API is
// consulted for high-precision requests and the result is cached.
func TestHighPrecisionRoutesUpstream(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockUpstream()
	defer mock.Close()

	orch, _ := newPipeline(t, redisClient, mock.URL())
	ctx := context.Background()

	req := engine.NewRequest(astro.EngineSolarLongitude, map[string]string{
		"date": "2024-06-21",
	}, engine.PrecisionHigh)

	result, err := orch.Calculate(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if result.Meta.Backend != "authoritative" {
		t.Errorf("backend = %q, want authoritative", result.Meta.Backend)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("upstream requests = %d, want 1", mock.RequestCount())
	}

	// The cached high-precision result answers a standard request too,
	// because precision is excluded from the fingerprint.
	stdReq := engine.NewRequest(astro.EngineSolarLongitude, map[string]string{
		"date": "2024-06-21",
	}, engine.PrecisionStandard)
	cached, err := orch.Calculate(ctx, stdReq)
	if err != nil {
		t.Fatal(err)
	}
	if !cached.Meta.Cached {
		t.Error("standard request should reuse the high-precision result")
	}
	if mock.RequestCount() != 1 {
		t.Errorf("upstream requests = %d, want still 1", mock.RequestCount())
	}
}

// TestUpstreamOutageFallsBack verifies a dead upstream degrades to the
// local routines instead of failing the request.
func TestUpstreamOutageFallsBack(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.FailNext(-1, http.StatusInternalServerError)

	orch, client := newPipeline(t, redisClient, mock.URL())
	ctx := context.Background()

	req := engine.NewRequest(astro.EngineLunarLongitude, map[string]string{
		"date": "2024-06-21",
	}, engine.PrecisionHigh)

	result, err := orch.Calculate(ctx, req)
	if err != nil {
		t.Fatalf("expected fallback result, got %v", err)
	}
	if result.Meta.Backend != "fallback" {
		t.Errorf("backend = %q, want fallback", result.Meta.Backend)
	}

	if client.Status().Breaker.ConsecutiveFailures == 0 {
		t.Error("breaker should have recorded the upstream failure")
	}
}

// TestWorkflowEndToEnd runs a canonical workflow through the full
// pipeline, sharing the cache between steps and later requests.
func TestWorkflowEndToEnd(t *testing.T) {
	redisClient := setupRedis(t)

	mock := testutil.NewMockUpstream()
	defer mock.Close()

	orch, _ := newPipeline(t, redisClient, mock.URL())
	executor := workflow.NewExecutor(orch, zerolog.Nop())
	ctx := context.Background()

	result, err := executor.Execute(ctx, workflow.BirthBlueprint, map[string]string{
		workflow.ParamBirthInstant: "1990-03-15T06:30:00Z",
		workflow.ParamBirthDate:    "1990-03-15",
	}, engine.PrecisionStandard)
	if err != nil {
		t.Fatalf("workflow failed: %v", err)
	}
	if result.Degraded {
		t.Error("workflow should complete without degradation")
	}
	if len(result.Synthesis) == 0 {
		t.Error("birth blueprint should produce a synthesis")
	}

	// A direct request for a step's calculation hits the cache the
	// workflow populated.
	req := engine.NewRequest(astro.EngineNumerology, map[string]string{
		"birth_date": "1990-03-15",
	}, engine.PrecisionStandard)
	cached, err := orch.Calculate(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if !cached.Meta.Cached {
		t.Error("workflow results should be reusable from the cache")
	}
}
