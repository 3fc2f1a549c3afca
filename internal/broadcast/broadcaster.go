package broadcast

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"github.com/google/uuid"

	"github.com/m1kah/livegrid/internal/metrics"
	"github.com/m1kah/livegrid/internal/store"
)

var (
	// ErrNotSubscribed is returned by [Unsubscribe] when the handle has no
	// registration. It signals a double detach or a detach of a handle that
	// was never attached.
	ErrNotSubscribed = errors.New("subscriber is not registered")

	// ErrCancelled is returned by [Subscribe] after [Broadcaster.Cancel].
	ErrCancelled = errors.New("broadcaster is cancelled")
)

// entry is one registration. ref holds the weak.Pointer the entry was made
// from so Unsubscribe can match by identity without keeping the subscriber
// alive.
//
// inFlight is set while a timed OnChange call for this registration is
// running, including one that outlived the dispatch timeout.
type entry struct {
	id    string
	label string
	ref   any
	load  func() Subscriber

	inFlight atomic.Bool
}

// Broadcaster holds subscriber registrations and dispatches change batches
// to them on a dedicated goroutine.
//
// All methods are safe for concurrent use. Registration changes may happen
// while a publish is in progress; Publish iterates a snapshot.
type Broadcaster struct {
	logger          *slog.Logger
	metrics         *metrics.Metrics
	dispatchTimeout time.Duration

	mu        sync.Mutex
	entries   []*entry
	cancelled bool

	queue      *dispatchQueue
	cancelOnce sync.Once
}

// Option configures a [Broadcaster].
type Option func(*Broadcaster)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broadcaster) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to no-op metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broadcaster) {
		if m != nil {
			b.metrics = m
		}
	}
}

// WithDispatchTimeout bounds how long the dispatch goroutine waits for a
// single OnChange call before moving on to the next task. Zero waits
// indefinitely.
func WithDispatchTimeout(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d >= 0 {
			b.dispatchTimeout = d
		}
	}
}

// New creates a [Broadcaster] and starts its dispatch goroutine.
//
// Call [Broadcaster.Cancel] to stop it.
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		logger:  slog.Default(),
		metrics: metrics.Noop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.queue = newDispatchQueue(b.execute)
	return b
}

// Subscribe registers sub with b and returns the registration id.
//
// The registry keeps only a weak pointer to sub. Registering the same handle
// twice creates two registrations; callers that do not want duplicate
// notifications must avoid that themselves.
func Subscribe[T any, P interface {
	*T
	Subscriber
}](b *Broadcaster, sub P) (string, error) {
	if sub == nil {
		return "", errors.New("subscriber cannot be nil")
	}

	wp := weak.Make((*T)(sub))
	e := &entry{
		id:    uuid.NewString(),
		label: fmt.Sprintf("%T", sub),
		ref:   wp,
		load: func() Subscriber {
			p := wp.Value()
			if p == nil {
				return nil
			}
			return P(p)
		},
	}

	b.mu.Lock()
	if b.cancelled {
		b.mu.Unlock()
		return "", ErrCancelled
	}
	b.entries = append(b.entries, e)
	count := len(b.entries)
	b.mu.Unlock()

	b.metrics.Subscribers.Set(float64(count))
	b.logger.Info("subscriber added",
		"subscription_id", e.id,
		"subscriber", e.label,
		"subscribers", count,
	)
	return e.id, nil
}

// Unsubscribe removes the first registration of sub.
//
// Returns [ErrNotSubscribed] if sub has no registration. That is a caller
// bug, so it is also logged at error level.
func Unsubscribe[T any, P interface {
	*T
	Subscriber
}](b *Broadcaster, sub P) error {
	if sub == nil {
		return fmt.Errorf("%w: nil subscriber", ErrNotSubscribed)
	}
	ref := any(weak.Make((*T)(sub)))

	b.mu.Lock()
	idx := slices.IndexFunc(b.entries, func(e *entry) bool { return e.ref == ref })
	if idx < 0 {
		b.mu.Unlock()
		b.logger.Error("unsubscribe of unregistered subscriber", "subscriber", fmt.Sprintf("%T", sub))
		return fmt.Errorf("%w: %T", ErrNotSubscribed, sub)
	}
	e := b.entries[idx]
	b.entries = slices.Delete(b.entries, idx, idx+1)
	count := len(b.entries)
	b.mu.Unlock()

	b.metrics.Subscribers.Set(float64(count))
	b.logger.Info("subscriber removed",
		"subscription_id", e.id,
		"subscriber", e.label,
		"subscribers", count,
	)
	return nil
}

// Publish queues batch for every live subscriber and returns how many
// notification tasks were queued.
//
// Registrations whose subscriber has been collected, or reports
// Attached() == false, are removed instead. Publish never blocks on
// subscribers. Batches are queued in call order on a single dispatch
// goroutine; completion order across subscribers is not guaranteed once a
// dispatch timeout lets a slow call overlap the next one.
func (b *Broadcaster) Publish(batch store.ChangeBatch) int {
	snapshot, ok := b.snapshot()
	if !ok {
		return 0
	}

	var stale []*entry
	queued := 0
	for _, e := range snapshot {
		sub := e.load()
		if sub == nil || !attached(sub) {
			stale = append(stale, e)
			continue
		}
		if b.queue.enqueue(task{
			entry: e,
			sub:   sub,
			batch: slices.Clone(batch),
		}) {
			queued++
		}
	}
	b.prune(stale)

	b.metrics.Publishes.Inc()
	b.logger.Debug("notified subscribers",
		"subscribers", queued,
		"changed", len(batch),
	)
	return queued
}

// Sweep prunes stale registrations without dispatching anything and returns
// the number removed.
func (b *Broadcaster) Sweep() int {
	snapshot, ok := b.snapshot()
	if !ok {
		return 0
	}

	var stale []*entry
	for _, e := range snapshot {
		if sub := e.load(); sub == nil || !attached(sub) {
			stale = append(stale, e)
		}
	}
	return b.prune(stale)
}

// Len returns the number of registrations, including any not yet pruned.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Pending returns the number of queued notification tasks not yet started.
func (b *Broadcaster) Pending() int {
	return b.queue.pending()
}

// Cancel stops accepting new work, runs the tasks already queued and waits
// for the dispatch goroutine to exit. Cancel is idempotent.
func (b *Broadcaster) Cancel() {
	b.cancelOnce.Do(func() {
		b.mu.Lock()
		b.cancelled = true
		b.mu.Unlock()

		b.queue.close()
		b.logger.Info("broadcaster cancelled")
	})
}

func (b *Broadcaster) snapshot() ([]*entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancelled {
		return nil, false
	}
	return slices.Clone(b.entries), true
}

// prune removes the given entries by identity. Entries already removed by a
// concurrent Unsubscribe are ignored.
func (b *Broadcaster) prune(stale []*entry) int {
	if len(stale) == 0 {
		return 0
	}

	b.mu.Lock()
	removed := make([]*entry, 0, len(stale))
	b.entries = slices.DeleteFunc(b.entries, func(e *entry) bool {
		if slices.Contains(stale, e) {
			removed = append(removed, e)
			return true
		}
		return false
	})
	count := len(b.entries)
	b.mu.Unlock()

	for _, e := range removed {
		b.metrics.PrunedSubscribers.Inc()
		b.logger.Info("pruned stale subscriber",
			"subscription_id", e.id,
			"subscriber", e.label,
		)
	}
	b.metrics.Subscribers.Set(float64(count))
	return len(removed)
}

// execute runs one task on the dispatch goroutine, bounded by the dispatch
// timeout when one is set.
//
// A call that exceeds the timeout keeps running on its own goroutine. Until
// it returns, further tasks for the same registration are skipped, so a hung
// subscriber costs one goroutine rather than one per publish.
func (b *Broadcaster) execute(t task) {
	if b.dispatchTimeout <= 0 {
		b.deliver(t)
		return
	}

	e := t.entry
	if !e.inFlight.CompareAndSwap(false, true) {
		b.metrics.DispatchSkipped.Inc()
		b.logger.Warn("skipped notification for busy subscriber",
			"subscription_id", e.id,
			"subscriber", e.label,
			"changed", len(t.batch),
		)
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer e.inFlight.Store(false)
		b.deliver(t)
	}()

	timer := time.NewTimer(b.dispatchTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		b.metrics.DispatchSlow.Inc()
		b.logger.Warn("subscriber notification exceeded dispatch timeout",
			"subscription_id", e.id,
			"subscriber", e.label,
			"timeout", b.dispatchTimeout.String(),
		)
	}
}

// deliver calls OnChange with panic recovery. A panic is logged with a
// correlation id and the full stack; it never reaches the dispatcher.
func (b *Broadcaster) deliver(t task) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			b.metrics.DispatchFailures.Inc()
			b.logger.Error("subscriber notification failed",
				"correlation_id", correlationID,
				"subscription_id", t.entry.id,
				"subscriber", t.entry.label,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	b.metrics.DispatchTasks.Inc()
	t.sub.OnChange(t.batch)
}

// attached reports whether sub's owner is still present. Subscribers that do
// not implement Attacher are attached for as long as they are reachable. A
// panicking Attached is treated as detached.
func attached(sub Subscriber) (ok bool) {
	a, isAttacher := sub.(Attacher)
	if !isAttacher {
		return true
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return a.Attached()
}
