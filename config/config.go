// Package config provides YAML configuration parsing for livegrid.
//
// This package enables running livegrid as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	title: Precious Stones
//	port: 8080
//	log_level: info
//
//	refresh:
//	  interval: 5s
//	  initial_delay: 5s
//	  skip_probability: 0.3
//	  new_probability: 0.2
//	  max_delta: 100
//
//	broadcast:
//	  dispatch_timeout: 2s
//	  sweep_schedule: "@every 1m"
//
//	records: [Opal, Ruby, Sapphire]
//	samples: [Garnet, Jade]
//
//	relay:
//	  redis_addr: ${REDIS_ADDR:-}
//	  channel: livegrid:changes
//
//	metrics:
//	  enabled: true
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/m1kah/livegrid/internal/janitor"
	"github.com/m1kah/livegrid/internal/refresh"
	"github.com/m1kah/livegrid/internal/store"
)

const (
	// minRefreshInterval keeps a misconfigured grid from spinning.
	minRefreshInterval = 100 * time.Millisecond

	defaultPort            = 8080
	defaultDispatchTimeout = 2 * time.Second
)

// Config is the root configuration structure for livegrid.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML; both fill in every
// default, so all pointer fields are non-nil afterwards.
type Config struct {
	// Title is the dashboard title. Defaults to "livegrid" if not set.
	// Supports environment variable substitution.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	Refresh   RefreshConfig   `yaml:"refresh"`
	Broadcast BroadcastConfig `yaml:"broadcast"`

	// Records are the names the store is seeded with, in display order.
	// Defaults to eight precious stones.
	Records []string `yaml:"records"`

	// Samples are the names new records are drawn from, in order.
	// Defaults to the built-in sample list.
	Samples []string `yaml:"samples"`

	Relay   RelayConfig   `yaml:"relay"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// RefreshConfig tunes the refresh cycle.
type RefreshConfig struct {
	// Interval is the fixed rate of refresh cycles. Defaults to 5s.
	Interval Duration `yaml:"interval"`

	// InitialDelay is the time before the first cycle. Defaults to Interval.
	InitialDelay *Duration `yaml:"initial_delay"`

	// SkipProbability is the chance a record is left untouched. Defaults to 0.3.
	SkipProbability *float64 `yaml:"skip_probability"`

	// NewProbability is the chance a cycle adds a record. Defaults to 0.2.
	NewProbability *float64 `yaml:"new_probability"`

	// MaxDelta bounds the random amount increase. Defaults to 100.
	MaxDelta float64 `yaml:"max_delta"`
}

// BroadcastConfig tunes change delivery.
type BroadcastConfig struct {
	// DispatchTimeout bounds one subscriber notification. Zero disables the
	// bound. Defaults to 2s.
	DispatchTimeout *Duration `yaml:"dispatch_timeout"`

	// SweepSchedule is a cron spec for pruning stale subscribers.
	// Defaults to "@every 1m".
	SweepSchedule string `yaml:"sweep_schedule"`
}

// RelayConfig enables mirroring change batches to Redis.
type RelayConfig struct {
	// RedisAddr is host:port of the Redis server. Empty disables the relay.
	// Supports environment variable substitution.
	RedisAddr string `yaml:"redis_addr"`

	// Channel is the pub/sub channel. Supports environment variable
	// substitution.
	Channel string `yaml:"channel"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Level returns the slog level for LogLevel.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		// submatches[2] is ":-..." (non-empty if default syntax was used)
		// submatches[3] is the actual default value (may be empty for ${VAR:-})
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in Title, Relay.RedisAddr and
// Relay.Channel. Defaults are applied to every unset field.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Refresh.Interval == 0 {
		c.Refresh.Interval = Duration(refresh.DefaultPeriod)
	}
	if c.Refresh.InitialDelay == nil {
		d := c.Refresh.Interval
		c.Refresh.InitialDelay = &d
	}
	if c.Refresh.SkipProbability == nil {
		p := refresh.DefaultSkipProbability
		c.Refresh.SkipProbability = &p
	}
	if c.Refresh.NewProbability == nil {
		p := refresh.DefaultNewProbability
		c.Refresh.NewProbability = &p
	}
	if c.Refresh.MaxDelta == 0 {
		c.Refresh.MaxDelta = refresh.DefaultMaxDelta
	}
	if c.Broadcast.DispatchTimeout == nil {
		d := Duration(defaultDispatchTimeout)
		c.Broadcast.DispatchTimeout = &d
	}
	if c.Broadcast.SweepSchedule == "" {
		c.Broadcast.SweepSchedule = janitor.DefaultSchedule
	}
	if len(c.Records) == 0 {
		c.Records = store.DefaultSeedNames()
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	var err error
	if c.Title, err = expandEnvVars(c.Title); err != nil {
		return fmt.Errorf("title: %w", err)
	}
	if c.Relay.RedisAddr, err = expandEnvVars(c.Relay.RedisAddr); err != nil {
		return fmt.Errorf("relay.redis_addr: %w", err)
	}
	if c.Relay.Channel, err = expandEnvVars(c.Relay.Channel); err != nil {
		return fmt.Errorf("relay.channel: %w", err)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	r := &c.Refresh
	if r.Interval.Duration() < minRefreshInterval {
		return fmt.Errorf("refresh.interval must be at least %s, got %s", minRefreshInterval, r.Interval.Duration())
	}
	if r.InitialDelay.Duration() < 0 {
		return fmt.Errorf("refresh.initial_delay cannot be negative, got %s", r.InitialDelay.Duration())
	}
	if p := *r.SkipProbability; p < 0 || p > 1 {
		return fmt.Errorf("refresh.skip_probability must be between 0 and 1, got %v", p)
	}
	if p := *r.NewProbability; p < 0 || p > 1 {
		return fmt.Errorf("refresh.new_probability must be between 0 and 1, got %v", p)
	}
	if r.MaxDelta < 0 {
		return fmt.Errorf("refresh.max_delta must be positive, got %v", r.MaxDelta)
	}

	if c.Broadcast.DispatchTimeout.Duration() < 0 {
		return fmt.Errorf("broadcast.dispatch_timeout cannot be negative, got %s", c.Broadcast.DispatchTimeout.Duration())
	}
	if err := janitor.ValidateSchedule(c.Broadcast.SweepSchedule); err != nil {
		return fmt.Errorf("broadcast.sweep_schedule: %w", err)
	}

	if err := validateNames("records", c.Records); err != nil {
		return err
	}
	if err := validateNames("samples", c.Samples); err != nil {
		return err
	}

	if c.Relay.RedisAddr == "" && c.Relay.Channel != "" {
		return fmt.Errorf("relay.channel is set but relay.redis_addr is empty")
	}

	return nil
}

func validateNames(field string, names []string) error {
	seen := make(map[string]struct{}, len(names))
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%s[%d]: name is required", field, i)
		}
		if _, exists := seen[name]; exists {
			return fmt.Errorf("%s: duplicate name %q", field, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
