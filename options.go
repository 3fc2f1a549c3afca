package livegrid

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m1kah/livegrid/internal/janitor"
)

// gridConfig holds mutable state during LiveGrid construction.
type gridConfig struct {
	title           string
	port            int
	refreshInterval time.Duration
	initialDelay    time.Duration
	skipProbability float64
	newProbability  float64
	maxDelta        float64
	dispatchTimeout time.Duration
	logger          *slog.Logger
	seedNames       []string
	sampleNames     []string
	metricsEnabled  bool
	redisAddr       string
	relayChannel    string
	sweepSchedule   string
	random          RandomSource
	clock           func() time.Time
	changeCallbacks []func([]string)
}

// RandomSource supplies uniform values in [0, 1). *rand.Rand from
// math/rand/v2 satisfies it.
type RandomSource interface {
	Float64() float64
}

// Option is a function that configures a [LiveGrid] instance during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*gridConfig) error

// WithPort sets the HTTP port for the dashboard server.
//
// The dashboard UI and API will be available at http://localhost:<port>.
// Defaults to 8080 if not specified.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *gridConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithRefreshInterval sets the fixed rate at which records are refreshed.
// Defaults to 5 seconds.
//
// Returns an error if the duration is zero or negative.
func WithRefreshInterval(d time.Duration) Option {
	return func(cfg *gridConfig) error {
		if d <= 0 {
			return errors.New("refresh interval must be positive")
		}
		cfg.refreshInterval = d
		return nil
	}
}

// WithInitialDelay sets the time before the first refresh. Defaults to the
// refresh interval. Zero refreshes immediately.
func WithInitialDelay(d time.Duration) Option {
	return func(cfg *gridConfig) error {
		if d < 0 {
			return errors.New("initial delay cannot be negative")
		}
		cfg.initialDelay = d
		return nil
	}
}

// WithSkipProbability sets the chance that a record is left untouched in a
// refresh cycle. Defaults to 0.3.
func WithSkipProbability(p float64) Option {
	return func(cfg *gridConfig) error {
		if err := validateProbability("skip probability", p); err != nil {
			return err
		}
		cfg.skipProbability = p
		return nil
	}
}

// WithNewProbability sets the chance that a refresh cycle adds a record from
// the sample names. Defaults to 0.2.
func WithNewProbability(p float64) Option {
	return func(cfg *gridConfig) error {
		if err := validateProbability("new probability", p); err != nil {
			return err
		}
		cfg.newProbability = p
		return nil
	}
}

// WithMaxDelta sets the exclusive upper bound of the random amount added to
// a refreshed record. Defaults to 100.
func WithMaxDelta(d float64) Option {
	return func(cfg *gridConfig) error {
		if d <= 0 {
			return errors.New("max delta must be positive")
		}
		cfg.maxDelta = d
		return nil
	}
}

// WithDispatchTimeout bounds how long the broadcaster waits for one
// subscriber before moving on to the next notification. Zero waits forever.
func WithDispatchTimeout(d time.Duration) Option {
	return func(cfg *gridConfig) error {
		if d < 0 {
			return errors.New("dispatch timeout cannot be negative")
		}
		cfg.dispatchTimeout = d
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the LiveGrid instance.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *gridConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithTitle sets the dashboard title displayed in the browser tab and header.
//
// If not specified, defaults to "livegrid".
func WithTitle(title string) Option {
	return func(cfg *gridConfig) error {
		cfg.title = title
		return nil
	}
}

// WithSeedNames replaces the records the store starts with. Every seeded
// record starts at amount 0.
//
// Returns an error if a name is empty or repeated.
func WithSeedNames(names ...string) Option {
	return func(cfg *gridConfig) error {
		if err := validateNames("seed", names); err != nil {
			return err
		}
		cfg.seedNames = append([]string(nil), names...)
		return nil
	}
}

// WithSampleNames replaces the names new records are drawn from, in order.
//
// Returns an error if a name is empty or repeated.
func WithSampleNames(names ...string) Option {
	return func(cfg *gridConfig) error {
		if err := validateNames("sample", names); err != nil {
			return err
		}
		cfg.sampleNames = append([]string(nil), names...)
		return nil
	}
}

// WithMetrics exposes Prometheus metrics at /metrics.
func WithMetrics(enabled bool) Option {
	return func(cfg *gridConfig) error {
		cfg.metricsEnabled = enabled
		return nil
	}
}

// WithRedisRelay mirrors every change batch to a Redis pub/sub channel.
// An empty channel uses "livegrid:changes".
//
// Returns an error if addr is empty.
func WithRedisRelay(addr, channel string) Option {
	return func(cfg *gridConfig) error {
		if addr == "" {
			return errors.New("redis address cannot be empty")
		}
		cfg.redisAddr = addr
		cfg.relayChannel = channel
		return nil
	}
}

// WithSweepSchedule sets the cron schedule on which stale subscribers are
// swept between publishes. Defaults to "@every 1m".
//
// Returns an error if spec is not a valid cron schedule.
func WithSweepSchedule(spec string) Option {
	return func(cfg *gridConfig) error {
		if err := janitor.ValidateSchedule(spec); err != nil {
			return err
		}
		cfg.sweepSchedule = spec
		return nil
	}
}

// WithRandomSource replaces the random source used by the refresh cycle.
//
// Returns an error if r is nil.
func WithRandomSource(r RandomSource) Option {
	return func(cfg *gridConfig) error {
		if r == nil {
			return errors.New("random source cannot be nil")
		}
		cfg.random = r
		return nil
	}
}

// WithClock replaces the time source used to stamp records.
//
// Returns an error if now is nil.
func WithClock(now func() time.Time) Option {
	return func(cfg *gridConfig) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.clock = now
		return nil
	}
}

// WithChangeCallback registers a function to be called with the names in
// every published change batch.
//
// Multiple callbacks may be registered by calling WithChangeCallback multiple
// times; they execute in registration order.
//
// IMPORTANT: Callbacks must be non-blocking. They run on the broadcaster's
// dispatch goroutine, so a slow callback delays every other subscriber.
//
// Panics within callbacks are recovered and logged.
//
// Nil callbacks are silently ignored.
func WithChangeCallback(cb func(names []string)) Option {
	return func(cfg *gridConfig) error {
		if cb == nil {
			return nil // no-op for nil callback (safe to call)
		}
		cfg.changeCallbacks = append(cfg.changeCallbacks, cb)
		return nil
	}
}

func validateProbability(what string, p float64) error {
	if p < 0 || p > 1 {
		return fmt.Errorf("%s must be between 0 and 1, got %v", what, p)
	}
	return nil
}

func validateNames(what string, names []string) error {
	seen := make(map[string]struct{}, len(names))
	for i, name := range names {
		if name == "" {
			return fmt.Errorf("%s names[%d]: name cannot be empty", what, i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%s names: duplicate name %q", what, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
