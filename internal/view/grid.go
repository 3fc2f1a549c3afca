package view

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/m1kah/livegrid/internal/broadcast"
	"github.com/m1kah/livegrid/internal/store"
)

// ErrDetached is returned by [Grid.Attach] once the grid has been detached.
var ErrDetached = errors.New("grid detached")

// DefaultEventBuffer is the outbound event buffer used when none is
// configured.
const DefaultEventBuffer = 16

// Row is one displayed record.
type Row struct {
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	Updated     string          `json:"updated"`
	LastUpdated time.Time       `json:"last_updated"`
}

func rowFrom(r store.Record) Row {
	return Row{
		Name:        r.Name,
		Amount:      r.Amount,
		Updated:     r.FormattedUpdateTime(),
		LastUpdated: r.LastUpdated,
	}
}

// RowsChanged is emitted after a grid applied a change batch.
type RowsChanged struct {
	Caption string   `json:"caption"`
	Rows    []Row    `json:"rows"`
	Changed []string `json:"changed"`
	Total   int      `json:"total"`
}

// GridOption configures a [Grid].
type GridOption func(*Grid)

// WithExecutor sets where the grid applies change batches. The default runs
// them inline on the caller's goroutine.
func WithExecutor(exec broadcast.Executor) GridOption {
	return func(g *Grid) {
		if exec != nil {
			g.exec = exec
		}
	}
}

// WithLogger sets the grid's logger.
func WithLogger(logger *slog.Logger) GridOption {
	return func(g *Grid) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithEventBuffer sets the capacity of the outbound event channel.
func WithEventBuffer(n int) GridOption {
	return func(g *Grid) {
		if n > 0 {
			g.events = make(chan RowsChanged, n)
		}
	}
}

// Grid is a headless table of records kept current by change batches.
//
// Rows are loaded from the store when the grid is created. On every batch
// the grid re-reads each named record: known rows are refreshed in place and
// unknown ones are appended, so row order is the order records first
// appeared.
type Grid struct {
	id     string
	store  store.Store
	exec   broadcast.Executor
	logger *slog.Logger
	events chan RowsChanged

	mu    sync.Mutex
	rows  []Row
	index map[string]int

	attached    atomic.Bool
	dropped     atomic.Int64
	broadcaster *broadcast.Broadcaster
	attachMu    sync.Mutex
	detached    bool
}

// NewGrid creates a grid holding every record currently in st.
func NewGrid(st store.Store, opts ...GridOption) *Grid {
	g := &Grid{
		id:     uuid.NewString(),
		store:  st,
		exec:   func(task func()) error { task(); return nil },
		logger: slog.Default(),
		events: make(chan RowsChanged, DefaultEventBuffer),
		index:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(g)
	}
	for _, r := range st.FindAll() {
		g.index[r.Name] = len(g.rows)
		g.rows = append(g.rows, rowFrom(r))
	}
	g.logger = g.logger.With("grid", g.id)
	return g
}

// ID returns the grid's unique id.
func (g *Grid) ID() string { return g.id }

// Events returns the channel that receives a [RowsChanged] per applied
// batch. Events are dropped when the channel is full.
func (g *Grid) Events() <-chan RowsChanged { return g.events }

// Dropped returns how many events were dropped on a full channel.
func (g *Grid) Dropped() int64 { return g.dropped.Load() }

// Attached reports whether the grid still wants change batches.
func (g *Grid) Attached() bool { return g.attached.Load() }

// Attach subscribes the grid to b.
func (g *Grid) Attach(b *broadcast.Broadcaster) error {
	g.attachMu.Lock()
	defer g.attachMu.Unlock()

	if g.detached {
		return ErrDetached
	}
	if g.broadcaster != nil {
		return nil
	}
	if _, err := broadcast.Subscribe(b, g); err != nil {
		return fmt.Errorf("attach grid: %w", err)
	}
	g.broadcaster = b
	g.attached.Store(true)
	return nil
}

// Detach unsubscribes the grid. Later calls do nothing.
func (g *Grid) Detach() {
	g.attachMu.Lock()
	defer g.attachMu.Unlock()

	if g.detached {
		return
	}
	g.detached = true
	g.attached.Store(false)

	if g.broadcaster == nil {
		return
	}
	// the broadcaster may already have pruned us
	if err := broadcast.Unsubscribe(g.broadcaster, g); err != nil && !errors.Is(err, broadcast.ErrNotSubscribed) {
		g.logger.Warn("failed to detach grid", "error", err)
	}
}

// OnChange hands batch to the grid's executor.
func (g *Grid) OnChange(batch store.ChangeBatch) {
	if !g.Attached() {
		return
	}
	if err := g.exec(func() { g.apply(batch) }); err != nil {
		g.logger.Warn("grid update rejected", "error", err, "changed", len(batch))
	}
}

// Caption describes the grid's contents.
func (g *Grid) Caption() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return caption(len(g.rows))
}

// Snapshot returns a copy of the current rows.
func (g *Grid) Snapshot() []Row {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Row, len(g.rows))
	copy(out, g.rows)
	return out
}

func caption(n int) string {
	return fmt.Sprintf("Example Grid with %d precious stones", n)
}

func (g *Grid) apply(batch store.ChangeBatch) {
	g.mu.Lock()
	for _, name := range batch {
		r, ok := g.store.Find(name)
		if !ok {
			continue
		}
		if i, exists := g.index[name]; exists {
			g.rows[i] = rowFrom(r)
			continue
		}
		g.index[name] = len(g.rows)
		g.rows = append(g.rows, rowFrom(r))
	}
	ev := RowsChanged{
		Caption: caption(len(g.rows)),
		Rows:    make([]Row, len(g.rows)),
		Changed: []string(batch),
		Total:   len(g.rows),
	}
	copy(ev.Rows, g.rows)
	g.mu.Unlock()

	select {
	case g.events <- ev:
	default:
		g.dropped.Add(1)
		g.logger.Debug("grid event dropped", "dropped", g.dropped.Load())
	}
}
