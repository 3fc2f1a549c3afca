package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/m1kah/livegrid/internal/metrics"
	"github.com/m1kah/livegrid/internal/store"
)

// DefaultPeriod is the refresh period used when none is configured.
const DefaultPeriod = 5 * time.Second

// Scheduler runs a [Refresher] at a fixed rate on a dedicated goroutine.
//
// The first tick fires after the initial delay; later ticks are spaced by the
// period from that point, not from the end of the previous tick. When a tick
// overruns, the ticks it missed run back to back until the schedule has
// caught up, so the nominal times never drift. Ticks never run concurrently.
//
// Each outcome goes to a callback: batches to onSuccess, errors to
// onFailure. Neither the refresher nor the callbacks can stop the schedule;
// panics are recovered and logged.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	refresher    Refresher
	period       time.Duration
	initialDelay time.Duration
	onSuccess    func(store.ChangeBatch)
	onFailure    func(error)
	logger       *slog.Logger
	metrics      *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool

	ticks atomic.Int64
}

// NewScheduler creates a new refresh [Scheduler].
//
// Parameters:
//   - refresher: The unit of work run on every tick
//   - period: Time between ticks; non-positive uses [DefaultPeriod]
//   - initialDelay: Time before the first tick; negative uses period
//   - onSuccess: Receives every batch (may be nil)
//   - onFailure: Receives every refresh error (may be nil)
//   - logger: Logger for lifecycle events and recovered panics
//
// The scheduler must be started with [Scheduler.Start] and stopped with
// [Scheduler.Stop].
func NewScheduler(
	refresher Refresher,
	period time.Duration,
	initialDelay time.Duration,
	onSuccess func(store.ChangeBatch),
	onFailure func(error),
	logger *slog.Logger,
	m *metrics.Metrics,
) *Scheduler {
	if period <= 0 {
		period = DefaultPeriod
	}
	if initialDelay < 0 {
		initialDelay = period
	}
	if logger == nil {
		logger = slog.Default()
	}
	if onSuccess == nil {
		onSuccess = func(store.ChangeBatch) {}
	}
	if onFailure == nil {
		onFailure = func(err error) {
			logger.Error("failed to refresh records", "error", err)
		}
	}
	return &Scheduler{
		refresher:    refresher,
		period:       period,
		initialDelay: initialDelay,
		onSuccess:    onSuccess,
		onFailure:    onFailure,
		logger:       logger,
		metrics:      metrics.OrNoop(m),
	}
}

// Start begins the repeating refresh in a background goroutine.
//
// Start is non-blocking. The loop runs until [Scheduler.Stop] is called or
// ctx is cancelled. If ctx is nil, context.Background() is used.
// Calling Start twice is a usage error; the second call is ignored.
// If Stop was called before Start, Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx // capture under lock to avoid race
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("refresh scheduler started",
		"period", s.period.String(),
		"initial_delay", s.initialDelay.String(),
	)

	go func() {
		defer s.wg.Done()

		delay := time.NewTimer(s.initialDelay)
		defer delay.Stop()

		select {
		case <-runCtx.Done():
			return
		case <-delay.C:
		}

		// nominal tick times are counted from the first tick, so tick
		// duration never shifts the schedule
		next := time.Now()
		for {
			s.tick(runCtx)
			next = next.Add(s.period)

			// an overrun leaves next in the past; the missed ticks then run
			// back to back until the schedule has caught up
			if wait := time.Until(next); wait > 0 {
				delay.Reset(wait)
				select {
				case <-runCtx.Done():
					return
				case <-delay.C:
				}
			} else if runCtx.Err() != nil {
				return
			}
		}
	}()
}

// Stop halts the schedule and waits for an in-flight tick to finish.
//
// Stop is idempotent and safe to call multiple times. Calling Stop before
// Start is a safe no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	first := !s.stopped
	if first {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	started := s.started
	s.mu.Unlock()

	s.wg.Wait()

	if first && started {
		s.logger.Info("refresh scheduler stopped", "ticks", s.ticks.Load())
	}
}

// Ticks returns the number of completed ticks.
func (s *Scheduler) Ticks() int64 {
	return s.ticks.Load()
}

// tick runs one refresh and routes its outcome. Nothing escapes it.
func (s *Scheduler) tick(ctx context.Context) {
	defer s.ticks.Add(1)
	s.metrics.RefreshTicks.Inc()

	batch, err := s.safeRefresh(ctx)
	if err != nil {
		s.metrics.RefreshFailures.Inc()
		s.safeCallback("failure", func() { s.onFailure(err) })
		return
	}
	s.safeCallback("success", func() { s.onSuccess(batch) })
}

// safeRefresh calls the refresher with panic recovery. Our own Worker never
// panics, but any Refresher may be plugged in.
func (s *Scheduler) safeRefresh(ctx context.Context) (batch store.ChangeBatch, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			s.logger.Error("refresher panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			batch = nil
			err = fmt.Errorf("refresher panic (correlation_id: %s)", correlationID)
		}
	}()
	return s.refresher.Refresh(ctx)
}

// safeCallback runs an outcome callback; a panic is logged and dropped.
func (s *Scheduler) safeCallback(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("refresh callback panicked",
				"callback", kind,
				"panic", fmt.Sprintf("%v", r),
			)
		}
	}()
	fn()
}
