// Package config loads and validates the registry configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the REG_ prefix (e.g., REG_DATABASE_HOST
// overrides database.host in the YAML).
//
// REG_JWT_SECRET is read directly and never written to the config file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/modlink/registry-engine/internal/address"
	"github.com/modlink/registry-engine/internal/events"
	"github.com/modlink/registry-engine/internal/registry"
)

// EnvPrefix is prepended to every environment variable override.
const EnvPrefix = "REG"

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Events    EventsConfig    `mapstructure:"events"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	// Driver is "memory" or "postgres"
	Driver string `mapstructure:"driver"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// RedisConfig holds the shared Redis client settings used by the event sink
// and the distributed rate limiter.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds actor token configuration
type AuthConfig struct {
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	Headers      HeadersConfig      `mapstructure:"headers"`
}

// HeadersConfig controls the response headers added to every API response.
type HeadersConfig struct {
	// HSTSMaxAge is the Strict-Transport-Security max-age; zero omits the header.
	HSTSMaxAge        time.Duration `mapstructure:"hsts_max_age"`
	IncludeSubdomains bool          `mapstructure:"hsts_include_subdomains"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
	// Backend is "memory" or "redis"
	Backend string `mapstructure:"backend"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// EventsConfig configures where committed registry events are delivered.
type EventsConfig struct {
	Log     LogSinkConfig     `mapstructure:"log"`
	Redis   RedisSinkConfig   `mapstructure:"redis"`
	Webhook WebhookSinkConfig `mapstructure:"webhook"`
	File    FileSinkConfig    `mapstructure:"file"`
}

type LogSinkConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type RedisSinkConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Channel string `mapstructure:"channel"`
}

type WebhookSinkConfig struct {
	Enabled       bool              `mapstructure:"enabled"`
	URL           string            `mapstructure:"url"`
	Headers       map[string]string `mapstructure:"headers"`
	Timeout       time.Duration     `mapstructure:"timeout"`
	BatchSize     int               `mapstructure:"batch_size"`
	FlushInterval time.Duration     `mapstructure:"flush_interval"`
}

type FileSinkConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// LimitsConfig caps the size of a single observation.
type LimitsConfig struct {
	MaxLinesPerObservation uint64 `mapstructure:"max_lines_per_observation"`
	MaxFilesPerObservation uint32 `mapstructure:"max_files_per_observation"`
}

// PolicyConfig lists hex actor ids allowed to observe and reconcile.
// An empty list admits any authenticated actor.
type PolicyConfig struct {
	Observers   []string `mapstructure:"observers"`
	Reconcilers []string `mapstructure:"reconcilers"`
}

// JobsConfig holds background job configuration
type JobsConfig struct {
	Reconcile ReconcileJobConfig `mapstructure:"reconcile"`
}

type ReconcileJobConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	// Actor is the hex actor id the job reconciles as
	Actor string `mapstructure:"actor"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",

		// Store
		"store.driver",

		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Redis
		"redis.enabled",
		"redis.addr",
		"redis.password",
		"redis.db",

		// Auth
		"auth.token_ttl",

		// Security
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.rate_limiting.backend",
		"security.headers.hsts_max_age",
		"security.headers.hsts_include_subdomains",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",

		// Events
		"events.log.enabled",
		"events.redis.enabled",
		"events.redis.channel",
		"events.webhook.enabled",
		"events.webhook.url",
		"events.webhook.timeout",
		"events.webhook.batch_size",
		"events.webhook.flush_interval",
		"events.file.enabled",
		"events.file.path",
		"events.file.max_size_mb",
		"events.file.max_backups",
		"events.file.max_age_days",
		"events.file.compress",

		// Limits
		"limits.max_lines_per_observation",
		"limits.max_files_per_observation",

		// Policy
		"policy.observers",
		"policy.reconcilers",

		// Jobs
		"jobs.reconcile.enabled",
		"jobs.reconcile.interval",
		"jobs.reconcile.actor",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	cfg, _, err := load(configPath)
	return cfg, err
}

func load(configPath string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/module-registry")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, nil, err
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("store.driver", "memory")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "module_registry")
	v.SetDefault("database.user", "registry")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.token_ttl", "1h")

	// Security defaults
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 120)
	v.SetDefault("security.rate_limiting.burst", 30)
	v.SetDefault("security.rate_limiting.backend", "memory")
	v.SetDefault("security.headers.hsts_max_age", "8760h")
	v.SetDefault("security.headers.hsts_include_subdomains", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	// Event sink defaults
	v.SetDefault("events.log.enabled", true)
	v.SetDefault("events.redis.enabled", false)
	v.SetDefault("events.redis.channel", "registry.events")
	v.SetDefault("events.webhook.enabled", false)
	v.SetDefault("events.webhook.timeout", "10s")
	v.SetDefault("events.webhook.batch_size", 0)
	v.SetDefault("events.webhook.flush_interval", "5s")
	v.SetDefault("events.file.enabled", false)
	v.SetDefault("events.file.path", "./events.jsonl")
	v.SetDefault("events.file.max_size_mb", 100)
	v.SetDefault("events.file.max_backups", 5)
	v.SetDefault("events.file.max_age_days", 30)

	// Observation limits
	v.SetDefault("limits.max_lines_per_observation", registry.DefaultMaxLinesPerObservation)
	v.SetDefault("limits.max_files_per_observation", registry.DefaultMaxFilesPerObservation)

	v.SetDefault("policy.observers", []string{})
	v.SetDefault("policy.reconcilers", []string{})

	// Jobs
	v.SetDefault("jobs.reconcile.enabled", false)
	v.SetDefault("jobs.reconcile.interval", "1h")
	v.SetDefault("jobs.reconcile.actor", "")
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	default:
		return fmt.Errorf("invalid store driver: %s (must be memory or postgres)", c.Store.Driver)
	}

	rl := c.Security.RateLimiting
	if rl.Enabled {
		if rl.RequestsPerMinute < 1 {
			return fmt.Errorf("security.rate_limiting.requests_per_minute must be positive")
		}
		switch rl.Backend {
		case "memory":
		case "redis":
			if !c.Redis.Enabled {
				return fmt.Errorf("redis rate limiting requires redis.enabled")
			}
		default:
			return fmt.Errorf("invalid rate limiting backend: %s (must be memory or redis)", rl.Backend)
		}
	}

	if c.Events.Redis.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("events.redis requires redis.enabled")
	}
	if c.Events.Webhook.Enabled && c.Events.Webhook.URL == "" {
		return fmt.Errorf("events.webhook.url is required when the webhook sink is enabled")
	}
	if c.Events.File.Enabled && c.Events.File.Path == "" {
		return fmt.Errorf("events.file.path is required when the file sink is enabled")
	}

	if _, err := c.Policy.AllowList(); err != nil {
		return err
	}
	if c.Jobs.Reconcile.Enabled {
		if c.Jobs.Reconcile.Interval <= 0 {
			return fmt.Errorf("jobs.reconcile.interval must be positive")
		}
		if _, err := c.Jobs.Reconcile.ActorKey(); err != nil {
			return err
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid logging format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Sinks converts the events section into publisher sink configurations.
func (c *EventsConfig) Sinks() []events.SinkConfig {
	return []events.SinkConfig{
		{Enabled: c.Log.Enabled, Type: "log"},
		{
			Enabled: c.Redis.Enabled,
			Type:    "redis",
			Redis:   &events.RedisConfig{Channel: c.Redis.Channel},
		},
		{
			Enabled: c.Webhook.Enabled,
			Type:    "webhook",
			Webhook: &events.WebhookConfig{
				URL:           c.Webhook.URL,
				Headers:       c.Webhook.Headers,
				Timeout:       c.Webhook.Timeout,
				BatchSize:     c.Webhook.BatchSize,
				FlushInterval: c.Webhook.FlushInterval,
			},
		},
		{
			Enabled: c.File.Enabled,
			Type:    "file",
			File: &events.FileConfig{
				Path:       c.File.Path,
				MaxSizeMB:  c.File.MaxSizeMB,
				MaxBackups: c.File.MaxBackups,
				MaxAgeDays: c.File.MaxAgeDays,
				Compress:   c.File.Compress,
			},
		},
	}
}

// ObservationLimits returns the engine caps.
func (c *LimitsConfig) ObservationLimits() registry.ObservationLimits {
	return registry.ObservationLimits{
		MaxLinesOfCode:    c.MaxLinesPerObservation,
		MaxFilesProcessed: c.MaxFilesPerObservation,
	}
}

// AllowList parses the configured actor ids.
func (c *PolicyConfig) AllowList() (registry.AllowList, error) {
	observers, err := parseKeys("policy.observers", c.Observers)
	if err != nil {
		return registry.AllowList{}, err
	}
	reconcilers, err := parseKeys("policy.reconcilers", c.Reconcilers)
	if err != nil {
		return registry.AllowList{}, err
	}
	return registry.AllowList{Observers: observers, Reconcilers: reconcilers}, nil
}

// ActorKey parses the reconcile actor id.
func (c *ReconcileJobConfig) ActorKey() (address.Key, error) {
	k, err := address.Parse(c.Actor)
	if err != nil {
		return address.Zero, fmt.Errorf("jobs.reconcile.actor: %w", err)
	}
	if k.IsZero() {
		return address.Zero, fmt.Errorf("jobs.reconcile.actor must not be zero")
	}
	return k, nil
}

func parseKeys(field string, raw []string) ([]address.Key, error) {
	keys := make([]address.Key, 0, len(raw))
	for _, s := range raw {
		k, err := address.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid actor id %q: %w", field, s, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}
