package config

import (
	"log/slog"

	"github.com/m1kah/livegrid"
)

// BuildOptions converts parsed configuration into SDK options.
//
// The logger is passed through so the binary controls log format; it may be
// nil, in which case the SDK default applies.
func BuildOptions(cfg *Config, logger *slog.Logger) []livegrid.Option {
	opts := []livegrid.Option{
		livegrid.WithPort(cfg.Port),
		livegrid.WithRefreshInterval(cfg.Refresh.Interval.Duration()),
		livegrid.WithSeedNames(cfg.Records...),
		livegrid.WithSweepSchedule(cfg.Broadcast.SweepSchedule),
		livegrid.WithMetrics(cfg.Metrics.Enabled),
	}

	if cfg.Refresh.InitialDelay != nil {
		opts = append(opts, livegrid.WithInitialDelay(cfg.Refresh.InitialDelay.Duration()))
	}
	if cfg.Refresh.SkipProbability != nil {
		opts = append(opts, livegrid.WithSkipProbability(*cfg.Refresh.SkipProbability))
	}
	if cfg.Refresh.NewProbability != nil {
		opts = append(opts, livegrid.WithNewProbability(*cfg.Refresh.NewProbability))
	}
	if cfg.Refresh.MaxDelta > 0 {
		opts = append(opts, livegrid.WithMaxDelta(cfg.Refresh.MaxDelta))
	}
	if cfg.Broadcast.DispatchTimeout != nil {
		opts = append(opts, livegrid.WithDispatchTimeout(cfg.Broadcast.DispatchTimeout.Duration()))
	}
	if len(cfg.Samples) > 0 {
		opts = append(opts, livegrid.WithSampleNames(cfg.Samples...))
	}
	if cfg.Relay.RedisAddr != "" {
		opts = append(opts, livegrid.WithRedisRelay(cfg.Relay.RedisAddr, cfg.Relay.Channel))
	}
	if cfg.Title != "" {
		opts = append(opts, livegrid.WithTitle(cfg.Title))
	}
	if logger != nil {
		opts = append(opts, livegrid.WithLogger(logger))
	}

	return opts
}
