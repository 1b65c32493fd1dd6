package config

import (
	"time"
)

// Config represents the complete application configuration
// following the Fulmen Forge Workhorse Standard three-layer pattern:
// Layer 1: Crucible defaults (config/guildrest/v0/guildrest-defaults.yaml)
// Layer 2: User overrides (~/.config/guildrest/config.yaml)
// Layer 3: Environment variables and runtime overrides
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Health   HealthConfig   `mapstructure:"health"`
	Debug    DebugConfig    `mapstructure:"debug"`
}

// APIConfig describes the upstream REST API.
type APIConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Token     string `mapstructure:"token"`
	UserAgent string `mapstructure:"user_agent"`
	// Timeout bounds a call from submission to result, queue time included.
	Timeout time.Duration `mapstructure:"timeout"`
	// HTTPTimeout bounds a single HTTP exchange.
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

// DispatchConfig tunes the request scheduler.
type DispatchConfig struct {
	MaxRetries  int     `mapstructure:"max_retries"`
	GlobalRate  float64 `mapstructure:"global_rate"`
	GlobalBurst int     `mapstructure:"global_burst"`
	// RoutesFile extends the built-in route catalog.
	RoutesFile string `mapstructure:"routes_file"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects where bucket state is persisted.
//
// Driver "libsql" uses Path or URL/AuthToken (Turso); driver "redis" uses
// the Redis section; driver "none" disables persistence.
type StoreConfig struct {
	Driver    string      `mapstructure:"driver"`
	Path      string      `mapstructure:"path"`
	URL       string      `mapstructure:"url"`
	AuthToken string      `mapstructure:"auth_token"`
	Redis     RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains redis connection settings for the shared store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles per Fulmen Forge Workhorse Standard:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
// - ENTERPRISE: Multiple sinks, middleware, throttling, policy enforcement (production)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	Profile string `mapstructure:"profile"`
}

// MetricsConfig controls the Prometheus exporter. /metrics on the relay
// port proxies to Port.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HealthConfig controls the /health probe routes.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	// Enabled forces debug-level server logs regardless of logging.level.
	Enabled bool `mapstructure:"enabled"`

	// PprofEnabled mounts /debug/pprof on the relay port. It exposes
	// process internals; keep it off outside development.
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}
