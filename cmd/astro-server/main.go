// Command astro-server exposes the calculation orchestrator over HTTP:
// engine calculations, workflow execution, cache administration, stats
// and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/siderium/astrocalc/pkg/astro"
	"github.com/siderium/astrocalc/pkg/cache"
	"github.com/siderium/astrocalc/pkg/config"
	"github.com/siderium/astrocalc/pkg/engine"
	"github.com/siderium/astrocalc/pkg/logging"
	"github.com/siderium/astrocalc/pkg/orchestrator"
	"github.com/siderium/astrocalc/pkg/remote"
	"github.com/siderium/astrocalc/pkg/router"
	"github.com/siderium/astrocalc/pkg/workflow"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Setup(logging.DefaultConfig())
		logger := logging.NewLogger("main")
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger := logging.Setup(cfg.Logging)
	logger.Info().Str("addr", cfg.Server.Addr).Msg("Starting astro-server")

	// Cache tiers, fastest first. Redis and disk are optional.
	tiers := []cache.Tier{cache.NewMemoryTier(cfg.Cache.MemoryMaxBytes)}
	if cfg.Cache.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			// A dead Redis degrades the cache, it does not block startup.
			logger.Warn().Err(err).Str("addr", cfg.Cache.RedisAddr).
				Msg("Redis unreachable, shared tier disabled")
		} else {
			tiers = append(tiers, cache.NewRedisTier(redisClient))
			logger.Info().Str("addr", cfg.Cache.RedisAddr).Msg("Redis tier enabled")
		}
	}
	if cfg.Cache.DiskDir != "" {
		diskTier, err := cache.NewDiskTier(cfg.Cache.DiskDir)
		if err != nil {
			logger.Warn().Err(err).Str("dir", cfg.Cache.DiskDir).
				Msg("Disk tier unavailable, disabled")
		} else {
			tiers = append(tiers, diskTier)
			logger.Info().Str("dir", cfg.Cache.DiskDir).Msg("Disk tier enabled")
		}
	}
	cacheMgr := cache.NewManager(logger, cfg.Cache.ShortLivedTTL, tiers...)

	local := astro.NewBackend()

	// Without an upstream the local backend serves every route.
	var authority engine.Backend = local
	var upstream *remote.Client
	if cfg.Upstream.BaseURL != "" {
		upstream, err = remote.NewClient(cfg.Upstream, local, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Creating upstream client")
		}
		authority = upstream
		logger.Info().Str("base_url", cfg.Upstream.BaseURL).Msg("Authoritative upstream enabled")
	} else {
		logger.Warn().Msg("No upstream configured, all routes served locally")
	}

	rt := router.New(local, authority, cfg.Router, logger)
	orch := orchestrator.New(cacheMgr, rt, astro.Catalog(), cfg.Orchestrator, logger)
	executor := workflow.NewExecutor(orch, logger)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: newMux(orch, executor, upstream),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()
	logger.Info().Str("addr", cfg.Server.Addr).Msg("Listening")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Shutdown incomplete")
	}
}

func newMux(orch *orchestrator.Orchestrator, executor *workflow.Executor, upstream *remote.Client) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /engines", handleEngines(orch))
	mux.HandleFunc("POST /engines/{engine_id}/calculate", handleCalculate(orch))
	mux.HandleFunc("GET /workflows", handleWorkflows(executor))
	mux.HandleFunc("POST /workflows/{workflow}/execute", handleWorkflowExecute(executor))
	mux.HandleFunc("GET /stats", handleStats(orch, upstream))
	mux.HandleFunc("DELETE /cache", handleCacheClear(orch))
	return mux
}
