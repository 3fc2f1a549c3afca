package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/m1kah/livegrid/internal/metrics"
	"github.com/m1kah/livegrid/internal/store"
)

const (
	DefaultSkipProbability = 0.3
	DefaultNewProbability  = 0.2
	DefaultMaxDelta        = 100.0
)

// Rand is the source of uniform values in [0, 1) used by [Worker].
type Rand interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// Refresher performs one refresh cycle.
type Refresher interface {
	Refresh(ctx context.Context) (store.ChangeBatch, error)
}

// WorkerConfig tunes a [Worker]. Use [DefaultWorkerConfig] as a base.
type WorkerConfig struct {
	// SkipProbability is the chance that a record is left untouched in a cycle.
	SkipProbability float64

	// NewProbability is the chance that a cycle introduces a generated record.
	NewProbability float64

	// MaxDelta is the exclusive upper bound of the random amount increase.
	MaxDelta float64

	// Rand supplies randomness. Nil uses math/rand/v2.
	Rand Rand

	// Now supplies timestamps. Nil uses time.Now.
	Now func() time.Time
}

// DefaultWorkerConfig returns the standard refresh tuning.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		SkipProbability: DefaultSkipProbability,
		NewProbability:  DefaultNewProbability,
		MaxDelta:        DefaultMaxDelta,
	}
}

// Worker runs a single refresh cycle against a store.
//
// Cycles are serialized: concurrent Refresh calls run one after another, so
// each reads the amounts the previous one wrote. Nothing else may write the
// store while a Worker is in use.
type Worker struct {
	mu sync.Mutex

	store     store.Store
	generator Generator
	cfg       WorkerConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewWorker creates a [Worker]. generator may be nil, in which case no new
// records are ever introduced.
func NewWorker(st store.Store, generator Generator, cfg WorkerConfig, logger *slog.Logger, m *metrics.Metrics) *Worker {
	if cfg.Rand == nil {
		cfg.Rand = globalRand{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:     st,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics.OrNoop(m),
	}
}

// Refresh bumps the amount of every record not skipped and may add one
// generated record. It returns the names touched, in store order, with the
// generated name last.
//
// A generated name is reported even when a record with that name already
// exists and the insert is skipped; subscribers resolve names against the
// store and will see the existing record.
//
// Refresh never panics. A panic inside the cycle is recovered and returned as
// an error carrying a correlation id; the stack is logged under that id.
func (w *Worker) Refresh(ctx context.Context) (batch store.ChangeBatch, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			w.logger.Error("refresh panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			batch = nil
			err = fmt.Errorf("refresh panic (correlation_id: %s): %v", correlationID, r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch = store.ChangeBatch{}
	now := w.cfg.Now()

	for _, record := range w.store.FindAll() {
		if w.cfg.Rand.Float64() < w.cfg.SkipProbability {
			continue
		}

		// Round is half away from zero, which is half-up for a non-negative delta
		delta := decimal.NewFromFloat(w.cfg.Rand.Float64() * w.cfg.MaxDelta).Round(0)
		record.Amount = record.Amount.Add(delta)
		record.LastUpdated = now
		if err := w.store.Update(record); err != nil {
			return nil, fmt.Errorf("failed to update %q: %w", record.Name, err)
		}
		batch = append(batch, record.Name)
	}

	if w.generator != nil && w.cfg.Rand.Float64() < w.cfg.NewProbability && w.generator.HasMore() {
		record, ok := w.generator.Next()
		if ok {
			if err := w.insertIfAbsent(record, now); err != nil {
				return nil, err
			}
			batch = append(batch, record.Name)
		}
	}

	w.metrics.RecordsChanged.Add(float64(len(batch)))
	w.logger.Debug("refresh completed", "changed", len(batch))
	return batch, nil
}

func (w *Worker) insertIfAbsent(record store.Record, now time.Time) error {
	if _, exists := w.store.Find(record.Name); exists {
		w.logger.Debug("generated record already exists", "name", record.Name)
		return nil
	}
	if record.LastUpdated.IsZero() {
		record.LastUpdated = now
	}

	err := w.store.Insert(record)
	switch {
	case errors.Is(err, store.ErrDuplicateName):
		return nil
	case err != nil:
		return fmt.Errorf("failed to insert %q: %w", record.Name, err)
	}

	w.metrics.RecordsInserted.Inc()
	w.metrics.StoreRecords.Set(float64(w.store.Len()))
	w.logger.Info("record added", "name", record.Name)
	return nil
}
