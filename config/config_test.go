package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestParse_EmptyConfig(t *testing.T) {
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// check defaults applied
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.Refresh.Interval.Duration() != 5*time.Second {
		t.Errorf("Refresh.Interval = %v, want 5s", cfg.Refresh.Interval.Duration())
	}
	if cfg.Refresh.InitialDelay.Duration() != 5*time.Second {
		t.Errorf("Refresh.InitialDelay = %v, want 5s", cfg.Refresh.InitialDelay.Duration())
	}
	if *cfg.Refresh.SkipProbability != 0.3 {
		t.Errorf("Refresh.SkipProbability = %v, want 0.3", *cfg.Refresh.SkipProbability)
	}
	if *cfg.Refresh.NewProbability != 0.2 {
		t.Errorf("Refresh.NewProbability = %v, want 0.2", *cfg.Refresh.NewProbability)
	}
	if cfg.Refresh.MaxDelta != 100 {
		t.Errorf("Refresh.MaxDelta = %v, want 100", cfg.Refresh.MaxDelta)
	}
	if cfg.Broadcast.DispatchTimeout.Duration() != 2*time.Second {
		t.Errorf("Broadcast.DispatchTimeout = %v, want 2s", cfg.Broadcast.DispatchTimeout.Duration())
	}
	if cfg.Broadcast.SweepSchedule != "@every 1m" {
		t.Errorf("Broadcast.SweepSchedule = %q, want @every 1m", cfg.Broadcast.SweepSchedule)
	}
	if len(cfg.Records) != 8 {
		t.Errorf("len(Records) = %d, want 8", len(cfg.Records))
	}
	if len(cfg.Samples) != 0 {
		t.Errorf("len(Samples) = %d, want 0", len(cfg.Samples))
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = true, want false")
	}
}

func TestParse_FullConfig(t *testing.T) {
	yaml := `
title: Precious Stones
port: 9090
log_level: debug

refresh:
  interval: 2s
  initial_delay: 500ms
  skip_probability: 0.5
  new_probability: 0
  max_delta: 10

broadcast:
  dispatch_timeout: 0s
  sweep_schedule: "*/5 * * * *"

records: [Opal, Ruby]
samples: [Jade]

relay:
  redis_addr: localhost:6379
  channel: stones

metrics:
  enabled: true
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Title != "Precious Stones" {
		t.Errorf("Title = %q, want %q", cfg.Title, "Precious Stones")
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("Level() = %v, want debug", cfg.Level())
	}
	if cfg.Refresh.Interval.Duration() != 2*time.Second {
		t.Errorf("Refresh.Interval = %v, want 2s", cfg.Refresh.Interval.Duration())
	}
	if cfg.Refresh.InitialDelay.Duration() != 500*time.Millisecond {
		t.Errorf("Refresh.InitialDelay = %v, want 500ms", cfg.Refresh.InitialDelay.Duration())
	}
	if *cfg.Refresh.SkipProbability != 0.5 {
		t.Errorf("Refresh.SkipProbability = %v, want 0.5", *cfg.Refresh.SkipProbability)
	}
	// explicit zero must survive defaulting
	if *cfg.Refresh.NewProbability != 0 {
		t.Errorf("Refresh.NewProbability = %v, want 0", *cfg.Refresh.NewProbability)
	}
	if cfg.Refresh.MaxDelta != 10 {
		t.Errorf("Refresh.MaxDelta = %v, want 10", cfg.Refresh.MaxDelta)
	}
	if cfg.Broadcast.DispatchTimeout.Duration() != 0 {
		t.Errorf("Broadcast.DispatchTimeout = %v, want 0", cfg.Broadcast.DispatchTimeout.Duration())
	}
	if cfg.Broadcast.SweepSchedule != "*/5 * * * *" {
		t.Errorf("Broadcast.SweepSchedule = %q", cfg.Broadcast.SweepSchedule)
	}
	if !reflect.DeepEqual(cfg.Records, []string{"Opal", "Ruby"}) {
		t.Errorf("Records = %v, want [Opal Ruby]", cfg.Records)
	}
	if !reflect.DeepEqual(cfg.Samples, []string{"Jade"}) {
		t.Errorf("Samples = %v, want [Jade]", cfg.Samples)
	}
	if cfg.Relay.RedisAddr != "localhost:6379" {
		t.Errorf("Relay.RedisAddr = %q", cfg.Relay.RedisAddr)
	}
	if cfg.Relay.Channel != "stones" {
		t.Errorf("Relay.Channel = %q", cfg.Relay.Channel)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
}

func TestParse_InitialDelayDefaultsToInterval(t *testing.T) {
	yaml := `
refresh:
  interval: 3s
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Refresh.InitialDelay.Duration() != 3*time.Second {
		t.Errorf("Refresh.InitialDelay = %v, want 3s", cfg.Refresh.InitialDelay.Duration())
	}
}

func TestParse_ZeroInitialDelay(t *testing.T) {
	yaml := `
refresh:
  initial_delay: 0s
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Refresh.InitialDelay.Duration() != 0 {
		t.Errorf("Refresh.InitialDelay = %v, want 0", cfg.Refresh.InitialDelay.Duration())
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	t.Setenv("GRID_TITLE", "Stones")
	t.Setenv("REDIS_HOST", "redis:6379")

	yaml := `
title: ${GRID_TITLE}
relay:
  redis_addr: ${REDIS_HOST}
  channel: ${RELAY_CHANNEL:-grid}
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Title != "Stones" {
		t.Errorf("Title = %q, want %q", cfg.Title, "Stones")
	}
	if cfg.Relay.RedisAddr != "redis:6379" {
		t.Errorf("Relay.RedisAddr = %q, want %q", cfg.Relay.RedisAddr, "redis:6379")
	}
	if cfg.Relay.Channel != "grid" {
		t.Errorf("Relay.Channel = %q, want %q", cfg.Relay.Channel, "grid")
	}
}

func TestParse_EnvVarEmptyDefaultDisablesRelay(t *testing.T) {
	yaml := `
relay:
  redis_addr: ${LIVEGRID_UNSET_REDIS:-}
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Relay.RedisAddr != "" {
		t.Errorf("Relay.RedisAddr = %q, want empty", cfg.Relay.RedisAddr)
	}
}

func TestParse_EnvVarMissing(t *testing.T) {
	yaml := `
title: ${LIVEGRID_MISSING_VAR}
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() expected error for missing env var, got nil")
	}
	if !strings.Contains(err.Error(), "LIVEGRID_MISSING_VAR") {
		t.Errorf("error = %q, want to contain variable name", err.Error())
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		wantErrLike string
	}{
		{
			name:        "port too high",
			yaml:        "port: 70000",
			wantErrLike: "port must be between",
		},
		{
			name:        "negative port",
			yaml:        "port: -1",
			wantErrLike: "port must be between",
		},
		{
			name:        "unknown log level",
			yaml:        "log_level: verbose",
			wantErrLike: "log_level",
		},
		{
			name:        "interval too short",
			yaml:        "refresh:\n  interval: 10ms",
			wantErrLike: "refresh.interval must be at least",
		},
		{
			name:        "negative initial delay",
			yaml:        "refresh:\n  initial_delay: -1s",
			wantErrLike: "refresh.initial_delay cannot be negative",
		},
		{
			name:        "skip probability above one",
			yaml:        "refresh:\n  skip_probability: 1.5",
			wantErrLike: "refresh.skip_probability",
		},
		{
			name:        "negative new probability",
			yaml:        "refresh:\n  new_probability: -0.1",
			wantErrLike: "refresh.new_probability",
		},
		{
			name:        "negative max delta",
			yaml:        "refresh:\n  max_delta: -5",
			wantErrLike: "refresh.max_delta",
		},
		{
			name:        "negative dispatch timeout",
			yaml:        "broadcast:\n  dispatch_timeout: -1s",
			wantErrLike: "broadcast.dispatch_timeout cannot be negative",
		},
		{
			name:        "bad sweep schedule",
			yaml:        "broadcast:\n  sweep_schedule: every minute",
			wantErrLike: "broadcast.sweep_schedule",
		},
		{
			name:        "empty record name",
			yaml:        "records: [Opal, '']",
			wantErrLike: "records[1]: name is required",
		},
		{
			name:        "duplicate record",
			yaml:        "records: [Opal, Opal]",
			wantErrLike: `records: duplicate name "Opal"`,
		},
		{
			name:        "duplicate sample",
			yaml:        "samples: [Jade, Jade]",
			wantErrLike: `samples: duplicate name "Jade"`,
		},
		{
			name:        "channel without address",
			yaml:        "relay:\n  channel: stones",
			wantErrLike: "relay.redis_addr is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErrLike) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.wantErrLike)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	yaml := `
this is not: valid: yaml: at all
  - broken
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() expected error for invalid YAML, got nil")
	}
}

func TestParse_InvalidDuration(t *testing.T) {
	yaml := `
refresh:
  interval: not-a-duration
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error = %q, want to contain 'invalid duration'", err.Error())
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"seconds", "10s", 10 * time.Second, false},
		{"milliseconds", "1500ms", 1500 * time.Millisecond, false},
		{"minutes", "2m", 2 * time.Minute, false},
		{"hours", "1h", 1 * time.Hour, false},
		{"combined", "1m30s", 90 * time.Second, false},
		{"invalid", "not-a-duration", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yaml := "refresh:\n  interval: " + tt.input

			cfg, err := Parse([]byte(yaml))
			if tt.wantErr {
				if err == nil {
					t.Fatal("Parse() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if cfg.Refresh.Interval.Duration() != tt.want {
				t.Errorf("Interval = %v, want %v", cfg.Refresh.Interval.Duration(), tt.want)
			}
		})
	}
}

func TestConfig_Level(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			if got := cfg.Level(); got != tt.want {
				t.Errorf("Level() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "value")
	t.Setenv("EMPTY_VAR", "") // set but empty

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"no vars", "plain text", "plain text", false},
		{"simple var", "${TEST_VAR}", "value", false},
		{"var in text", "prefix ${TEST_VAR} suffix", "prefix value suffix", false},
		{"multiple vars", "${TEST_VAR}-${TEST_VAR}", "value-value", false},
		{"with default (var set)", "${TEST_VAR:-default}", "value", false},
		{"with default (var unset)", "${UNSET:-default}", "default", false},
		{"missing required", "${MISSING}", "", true},
		{"empty default (var unset)", "${UNSET:-}", "", false},
		{"set but empty var", "${EMPTY_VAR}", "", false},
		{"set but empty with default", "${EMPTY_VAR:-fallback}", "", false}, // set var takes precedence
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// UNSET and MISSING are expected to not exist in environment
			got, err := expandEnvVars(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expandEnvVars() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expandEnvVars() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("expandEnvVars() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livegrid.yaml")
	if err := os.WriteFile(path, []byte("port: 9191\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 9191 {
		t.Errorf("Port = %d, want 9191", cfg.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("error = %q, want to contain 'failed to read config file'", err.Error())
	}
}
