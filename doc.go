// Package livegrid provides an embeddable grid of records that refreshes
// itself on a fixed schedule and pushes every change to connected viewers.
//
// A LiveGrid seeds an in-memory store with records, bumps their amounts at a
// fixed rate, occasionally adds a new record from a list of sample names, and
// broadcasts the names of the changed records. Each browser connected to the
// dashboard holds its own grid which re-reads the named records and redraws
// only what changed.
//
// # Quick Start
//
//	lg, _ := livegrid.New(livegrid.WithPort(8080))
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	lg.Start(ctx) // blocks until context is cancelled
//
// # Configuration
//
// LiveGrid uses the functional options pattern for configuration:
//
//	lg, err := livegrid.New(
//	    livegrid.WithRefreshInterval(2 * time.Second),
//	    livegrid.WithSeedNames("Opal", "Ruby", "Sapphire"),
//	    livegrid.WithSkipProbability(0.5),
//	    livegrid.WithMetrics(true),
//	    livegrid.WithChangeCallback(func(names []string) {
//	        slog.Info("records changed", "names", names)
//	    }),
//	)
//
// # Delivery
//
// Subscribers are held weakly: a grid whose owner has gone away is dropped
// on the next publish without ever being unsubscribed. Notifications run one
// at a time, in publish order, on a single dispatch goroutine; a subscriber
// that panics is logged and skipped without affecting the others.
//
// # Architecture
//
// LiveGrid consists of several internal packages (under internal/):
//
//   - internal/store: In-memory, insertion-ordered record store
//   - internal/refresh: Refresh worker and fixed-rate scheduler
//   - internal/broadcast: Weak-reference broadcaster with a FIFO dispatcher
//   - internal/view: Per-client grid model
//   - internal/server: HTTP server with REST, Server-Sent Events and WebSocket
//   - internal/relay: Optional Redis mirror of change batches
//   - internal/janitor: Cron-driven sweep of stale subscribers
//   - internal/metrics: Prometheus instrumentation
//   - dashboard: Embedded web UI assets
//
// The internal packages are not part of the public API and may change
// without notice.
package livegrid
