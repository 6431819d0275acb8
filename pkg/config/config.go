// Package config loads the server configuration from a YAML file with
// environment variable overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/siderium/astrocalc/pkg/cache"
	"github.com/siderium/astrocalc/pkg/logging"
	"github.com/siderium/astrocalc/pkg/orchestrator"
	"github.com/siderium/astrocalc/pkg/remote"
	"github.com/siderium/astrocalc/pkg/router"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// CacheConfig holds the tier settings.
type CacheConfig struct {
	// MemoryMaxBytes is the in-memory tier budget.
	MemoryMaxBytes int

	// RedisAddr enables the Redis tier when non-empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// DiskDir enables the disk tier when non-empty.
	DiskDir string

	// ShortLivedTTL is the expiry for short-lived entries.
	ShortLivedTTL time.Duration
}

// Config is the full server configuration.
type Config struct {
	Server       ServerConfig
	Logging      logging.Config
	Cache        CacheConfig
	Upstream     remote.ClientConfig
	Router       router.Config
	Orchestrator orchestrator.Config
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: logging.DefaultConfig(),
		Cache: CacheConfig{
			MemoryMaxBytes: cache.DefaultMemoryMaxBytes,
			ShortLivedTTL:  cache.DefaultShortLivedTTL,
		},
		Upstream: remote.DefaultClientConfig(),
		Router:   router.Config{Tolerance: router.DefaultTolerance},
		Orchestrator: orchestrator.Config{
			Timeout: orchestrator.DefaultTimeout,
		},
	}
}

// fileConfig mirrors the YAML schema. Durations are strings in Go
// syntax ("30s", "5m") because yaml.v3 has no native duration support.
type fileConfig struct {
	Server struct {
		Addr            string `yaml:"addr"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Pretty *bool  `yaml:"pretty"`
	} `yaml:"logging"`
	Cache struct {
		MemoryMaxBytes *int   `yaml:"memory_max_bytes"`
		RedisAddr      string `yaml:"redis_addr"`
		RedisPassword  string `yaml:"redis_password"`
		RedisDB        *int   `yaml:"redis_db"`
		DiskDir        string `yaml:"disk_dir"`
		ShortLivedTTL  string `yaml:"short_lived_ttl"`
	} `yaml:"cache"`
	Upstream struct {
		BaseURL   string `yaml:"base_url"`
		APIKey    string `yaml:"api_key"`
		Timeout   string `yaml:"timeout"`
		UserAgent string `yaml:"user_agent"`
		Retry     struct {
			MaxAttempts       *int    `yaml:"max_attempts"`
			InitialBackoff    string  `yaml:"initial_backoff"`
			MaxBackoff        string  `yaml:"max_backoff"`
			BackoffMultiplier float64 `yaml:"backoff_multiplier"`
		} `yaml:"retry"`
		Quota struct {
			DailyLimit  *int   `yaml:"daily_limit"`
			Reserve     *int   `yaml:"reserve"`
			MinInterval string `yaml:"min_interval"`
		} `yaml:"quota"`
		Breaker struct {
			FailureThreshold *int   `yaml:"failure_threshold"`
			Cooldown         string `yaml:"cooldown"`
			MaxCooldown      string `yaml:"max_cooldown"`
		} `yaml:"breaker"`
	} `yaml:"upstream"`
	Router struct {
		Tolerance *float64 `yaml:"tolerance"`
	} `yaml:"router"`
	Orchestrator struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"orchestrator"`
}

// Load reads the YAML file at path (when non-empty) over the defaults,
// then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		var file fileConfig
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
		if err := file.apply(&cfg); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// apply copies the values present in the file onto the defaults.
func (f fileConfig) apply(cfg *Config) error {
	setString(&cfg.Server.Addr, f.Server.Addr)
	if err := setDuration(&cfg.Server.ShutdownTimeout, f.Server.ShutdownTimeout, "server.shutdown_timeout"); err != nil {
		return err
	}

	if f.Logging.Level != "" {
		cfg.Logging.Level = logging.LogLevel(f.Logging.Level)
	}
	if f.Logging.Pretty != nil {
		cfg.Logging.Pretty = *f.Logging.Pretty
	}

	setInt(&cfg.Cache.MemoryMaxBytes, f.Cache.MemoryMaxBytes)
	setString(&cfg.Cache.RedisAddr, f.Cache.RedisAddr)
	setString(&cfg.Cache.RedisPassword, f.Cache.RedisPassword)
	setInt(&cfg.Cache.RedisDB, f.Cache.RedisDB)
	setString(&cfg.Cache.DiskDir, f.Cache.DiskDir)
	if err := setDuration(&cfg.Cache.ShortLivedTTL, f.Cache.ShortLivedTTL, "cache.short_lived_ttl"); err != nil {
		return err
	}

	setString(&cfg.Upstream.BaseURL, f.Upstream.BaseURL)
	setString(&cfg.Upstream.APIKey, f.Upstream.APIKey)
	setString(&cfg.Upstream.UserAgent, f.Upstream.UserAgent)
	if err := setDuration(&cfg.Upstream.Timeout, f.Upstream.Timeout, "upstream.timeout"); err != nil {
		return err
	}
	setInt(&cfg.Upstream.Retry.MaxAttempts, f.Upstream.Retry.MaxAttempts)
	if err := setDuration(&cfg.Upstream.Retry.InitialBackoff, f.Upstream.Retry.InitialBackoff, "upstream.retry.initial_backoff"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Upstream.Retry.MaxBackoff, f.Upstream.Retry.MaxBackoff, "upstream.retry.max_backoff"); err != nil {
		return err
	}
	if f.Upstream.Retry.BackoffMultiplier != 0 {
		cfg.Upstream.Retry.BackoffMultiplier = f.Upstream.Retry.BackoffMultiplier
	}
	setInt(&cfg.Upstream.Quota.DailyLimit, f.Upstream.Quota.DailyLimit)
	setInt(&cfg.Upstream.Quota.Reserve, f.Upstream.Quota.Reserve)
	if err := setDuration(&cfg.Upstream.Quota.MinInterval, f.Upstream.Quota.MinInterval, "upstream.quota.min_interval"); err != nil {
		return err
	}
	setInt(&cfg.Upstream.Breaker.FailureThreshold, f.Upstream.Breaker.FailureThreshold)
	if err := setDuration(&cfg.Upstream.Breaker.Cooldown, f.Upstream.Breaker.Cooldown, "upstream.breaker.cooldown"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Upstream.Breaker.MaxCooldown, f.Upstream.Breaker.MaxCooldown, "upstream.breaker.max_cooldown"); err != nil {
		return err
	}

	if f.Router.Tolerance != nil {
		cfg.Router.Tolerance = *f.Router.Tolerance
	}
	if err := setDuration(&cfg.Orchestrator.Timeout, f.Orchestrator.Timeout, "orchestrator.timeout"); err != nil {
		return err
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v, field string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}

// Environment overrides, applied after the file so secrets and
// deployment addresses never need to live in YAML.
func applyEnv(cfg *Config) {
	if v := os.Getenv("ASTRO_LISTEN_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("ASTRO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = logging.LogLevel(v)
	}
	if v := os.Getenv("ASTRO_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("ASTRO_REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}
	if v := os.Getenv("ASTRO_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.RedisDB = db
		}
	}
	if v := os.Getenv("ASTRO_DISK_DIR"); v != "" {
		cfg.Cache.DiskDir = v
	}
	if v := os.Getenv("ASTRO_UPSTREAM_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("ASTRO_UPSTREAM_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
	}
}

// Validate rejects configurations that cannot start.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr is required")
	}
	if c.Cache.MemoryMaxBytes <= 0 {
		return fmt.Errorf("memory cache budget must be positive (got %d)", c.Cache.MemoryMaxBytes)
	}
	if c.Router.Tolerance < 0 {
		return fmt.Errorf("router tolerance must not be negative (got %g)", c.Router.Tolerance)
	}
	return nil
}
