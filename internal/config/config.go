// Arbiter - RBAC Authorization Decision Engine
// Copyright 2026 Arbiter Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arbiterhq/arbiter

// Package config loads engine configuration with Koanf v2 from layered
// sources, in precedence order: environment variables, an optional YAML
// config file, built-in defaults.
//
// Environment variables use the ARBITER_ prefix with underscores
// standing in for nesting: ARBITER_REDIS_ADDR -> redis.addr.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
var DefaultConfigPaths = []string{
	"arbiter.yaml",
	"arbiter.yml",
	"/etc/arbiter/arbiter.yaml",
	"/etc/arbiter/arbiter.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "ARBITER_CONFIG_PATH"

// envPrefix is stripped from environment variables before mapping them
// onto config paths.
const envPrefix = "ARBITER_"

// Config is the root engine configuration.
type Config struct {
	Redis   RedisConfig   `koanf:"redis"`
	Cache   CacheConfig   `koanf:"cache"`
	Bulk    BulkConfig    `koanf:"bulk"`
	Audit   AuditConfig   `koanf:"audit"`
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// RedisConfig configures the external cache service connection.
type RedisConfig struct {
	// Addr is the host:port of the Redis server. Empty disables the
	// distributed cache layer entirely; the engine then evaluates
	// every check directly.
	Addr string `koanf:"addr"`

	// Password authenticates against the server (optional).
	Password string `koanf:"password"`

	// DB selects the Redis logical database.
	DB int `koanf:"db"`

	// DialTimeout bounds the initial connection attempt.
	DialTimeout time.Duration `koanf:"dial_timeout"`

	// OpTimeout bounds each cache round trip so evaluation never
	// blocks indefinitely on the cache.
	OpTimeout time.Duration `koanf:"op_timeout"`
}

// CacheConfig configures cache key layout and lifetimes.
type CacheConfig struct {
	// Namespace prefixes every cache key.
	Namespace string `koanf:"namespace"`

	// BaseTTL applies to check results and permission entries.
	// Hierarchy entries live for twice this long.
	BaseTTL time.Duration `koanf:"base_ttl"`

	// DecisionTTL applies to the in-process decision cache.
	DecisionTTL time.Duration `koanf:"decision_ttl"`

	// HierarchySize bounds the resolver's closure cache.
	HierarchySize int `koanf:"hierarchy_size"`
}

// BulkConfig bounds bulk operation fan-out.
type BulkConfig struct {
	// Concurrency is the maximum number of in-flight individual
	// checks during a bulk operation.
	Concurrency int `koanf:"concurrency"`
}

// AuditConfig configures the management audit log.
type AuditConfig struct {
	// Capacity is the ring buffer size; the oldest entries are
	// overwritten once it fills.
	Capacity int `koanf:"capacity"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the
	// endpoint.
	Addr string `koanf:"addr"`
}

// defaultConfig returns the built-in defaults applied before file and
// environment layers.
func defaultConfig() *Config {
	return &Config{
		Redis: RedisConfig{
			Addr:        "",
			DB:          0,
			DialTimeout: 5 * time.Second,
			OpTimeout:   250 * time.Millisecond,
		},
		Cache: CacheConfig{
			Namespace:     "arbiter",
			BaseTTL:       5 * time.Minute,
			DecisionTTL:   time.Minute,
			HierarchySize: 1024,
		},
		Bulk: BulkConfig{
			Concurrency: 16,
		},
		Audit: AuditConfig{
			Capacity: 1000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Addr: ":2112",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file,
// and ARBITER_* environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges after all layers are applied.
func (c *Config) Validate() error {
	if c.Cache.Namespace == "" {
		return errors.New("cache.namespace must not be empty")
	}
	if strings.ContainsAny(c.Cache.Namespace, ": ") {
		return fmt.Errorf("cache.namespace %q must not contain colons or spaces", c.Cache.Namespace)
	}
	if c.Cache.BaseTTL <= 0 {
		return errors.New("cache.base_ttl must be positive")
	}
	if c.Cache.DecisionTTL <= 0 {
		return errors.New("cache.decision_ttl must be positive")
	}
	if c.Cache.HierarchySize <= 0 {
		return errors.New("cache.hierarchy_size must be positive")
	}
	if c.Bulk.Concurrency <= 0 {
		return errors.New("bulk.concurrency must be positive")
	}
	if c.Audit.Capacity <= 0 {
		return errors.New("audit.capacity must be positive")
	}
	return nil
}

// envTransform maps ARBITER_REDIS_ADDR to redis.addr. Only the first
// underscore becomes a separator; the rest of the name stays a single
// key segment (base_ttl, dial_timeout).
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.Replace(s, "_", ".", 1)
}

// findConfigFile returns the first config file found, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
