// Package janitor runs periodic housekeeping for a livegrid instance: it
// sweeps stale broadcaster registrations between publishes and keeps the
// store gauge current.
package janitor

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule is the cron spec used when none is configured.
const DefaultSchedule = "@every 1m"

// Sweeper removes stale registrations and reports how many it removed.
type Sweeper interface {
	Sweep() int
}

// Counter reports a size.
type Counter interface {
	Len() int
}

// Gauge receives the latest size.
type Gauge interface {
	Set(float64)
}

// Janitor owns a cron scheduler with a single housekeeping job.
type Janitor struct {
	cron     *cron.Cron
	sweeper  Sweeper
	records  Counter
	gauge    Gauge
	schedule string
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	runs    int
}

// New creates a [Janitor]. records and gauge may be nil.
//
// Returns an error if schedule is not a valid cron spec.
func New(schedule string, sweeper Sweeper, records Counter, gauge Gauge, logger *slog.Logger) (*Janitor, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}

	cl := &cronLogger{logger: logger}
	j := &Janitor{
		cron:     cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		sweeper:  sweeper,
		records:  records,
		gauge:    gauge,
		schedule: schedule,
		logger:   logger,
	}

	if _, err := j.cron.AddFunc(schedule, j.Run); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	return j, nil
}

// ValidateSchedule reports whether spec parses as a cron schedule.
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	return nil
}

// Start begins running the job on its schedule. Calling Start twice is a
// no-op.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return
	}
	j.started = true
	j.cron.Start()
	j.logger.Info("janitor started", "schedule", j.schedule)
}

// Stop halts the schedule and waits for a running job to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	started := j.started
	j.started = false
	j.mu.Unlock()

	if !started {
		return
	}
	<-j.cron.Stop().Done()
	j.logger.Info("janitor stopped")
}

// Run performs one housekeeping pass.
func (j *Janitor) Run() {
	pruned := j.sweeper.Sweep()
	if j.records != nil && j.gauge != nil {
		j.gauge.Set(float64(j.records.Len()))
	}

	j.mu.Lock()
	j.runs++
	j.mu.Unlock()

	j.logger.Debug("janitor pass completed", "pruned", pruned)
}

// Runs returns how many passes have completed.
func (j *Janitor) Runs() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
