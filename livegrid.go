package livegrid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/m1kah/livegrid/dashboard"
	"github.com/m1kah/livegrid/internal/broadcast"
	"github.com/m1kah/livegrid/internal/janitor"
	"github.com/m1kah/livegrid/internal/metrics"
	"github.com/m1kah/livegrid/internal/refresh"
	"github.com/m1kah/livegrid/internal/relay"
	"github.com/m1kah/livegrid/internal/server"
	"github.com/m1kah/livegrid/internal/store"
)

const (
	defaultRefreshInterval = refresh.DefaultPeriod
	defaultPort            = 8080
	defaultDispatchTimeout = 2 * time.Second
)

// ErrAlreadyStarted is returned by [LiveGrid.Start] on every call after the
// first.
var ErrAlreadyStarted = errors.New("livegrid already started")

// LiveGrid is the main orchestrator for refreshing records and pushing
// changes to every connected grid.
//
// LiveGrid seeds an in-memory store, refreshes it at a fixed rate, broadcasts
// each change batch to subscribers and serves a real-time dashboard via HTTP.
// It is created using [New] with functional options and started with
// [LiveGrid.Start].
//
// The typical lifecycle is:
//
//	lg, err := livegrid.New(livegrid.WithPort(8080))
//	if err != nil {
//	    slog.Error("failed to create livegrid", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	lg.Start(ctx) // blocks until context cancelled
//
// A LiveGrid runs once: after Start returns, its broadcaster is cancelled.
type LiveGrid struct {
	title           string
	port            int
	refreshInterval time.Duration
	initialDelay    time.Duration
	sweepSchedule   string
	redisAddr       string
	relayChannel    string
	logger          *slog.Logger

	store       *store.MemoryStore
	broadcaster *broadcast.Broadcaster
	worker      *refresh.Worker
	generator   *refresh.SampleGenerator
	metrics     *metrics.Metrics
	callbacks   *callbackSubscriber

	started chan struct{}
}

// New creates a new [LiveGrid] instance with the given options.
//
// Every option has a default:
//   - Refresh interval and initial delay: 5 seconds
//   - Skip probability 0.3, new-record probability 0.2, max delta 100
//   - Port: 8080
//   - Seed records: eight precious stones, amount 0
//   - Sweep schedule: every minute
//
// Returns an error if any option is invalid.
func New(opts ...Option) (*LiveGrid, error) {
	cfg := &gridConfig{
		port:            defaultPort,
		refreshInterval: defaultRefreshInterval,
		initialDelay:    -1,
		skipProbability: refresh.DefaultSkipProbability,
		newProbability:  refresh.DefaultNewProbability,
		maxDelta:        refresh.DefaultMaxDelta,
		dispatchTimeout: defaultDispatchTimeout,
		seedNames:       store.DefaultSeedNames(),
		sweepSchedule:   janitor.DefaultSchedule,
		clock:           time.Now,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	// the initial delay follows the interval unless set explicitly
	initialDelay := cfg.initialDelay
	if initialDelay < 0 {
		initialDelay = cfg.refreshInterval
	}

	var m *metrics.Metrics
	if cfg.metricsEnabled {
		m = metrics.New()
	}

	st := store.NewMemoryStore(store.SeedNamed(cfg.clock(), cfg.seedNames...)...)
	metrics.OrNoop(m).StoreRecords.Set(float64(st.Len()))

	b := broadcast.New(
		broadcast.WithLogger(logger),
		broadcast.WithMetrics(m),
		broadcast.WithDispatchTimeout(cfg.dispatchTimeout),
	)

	generator := refresh.NewSampleGenerator(cfg.sampleNames...)

	workerCfg := refresh.DefaultWorkerConfig()
	workerCfg.SkipProbability = cfg.skipProbability
	workerCfg.NewProbability = cfg.newProbability
	workerCfg.MaxDelta = cfg.maxDelta
	workerCfg.Now = cfg.clock
	if cfg.random != nil {
		workerCfg.Rand = cfg.random
	}

	lg := &LiveGrid{
		title:           cfg.title,
		port:            cfg.port,
		refreshInterval: cfg.refreshInterval,
		initialDelay:    initialDelay,
		sweepSchedule:   cfg.sweepSchedule,
		redisAddr:       cfg.redisAddr,
		relayChannel:    cfg.relayChannel,
		logger:          logger,
		store:           st,
		broadcaster:     b,
		worker:          refresh.NewWorker(st, generator, workerCfg, logger, m),
		generator:       generator,
		metrics:         m,
		started:         make(chan struct{}, 1),
	}

	if len(cfg.changeCallbacks) > 0 {
		lg.callbacks = &callbackSubscriber{
			callbacks: slices.Clone(cfg.changeCallbacks),
			logger:    logger,
		}
		if _, err := broadcast.Subscribe(b, lg.callbacks); err != nil {
			return nil, fmt.Errorf("failed to register change callbacks: %w", err)
		}
	}

	return lg, nil
}

// Start begins refreshing records and serving the dashboard.
//
// Start is a blocking call that runs until the provided context is cancelled.
// During execution:
//
//   - Records are refreshed after the initial delay, then at the refresh interval
//   - Each change batch is broadcast to every connected grid
//   - The HTTP server serves the dashboard at http://localhost:<port>
//   - Stale subscribers are swept on the sweep schedule
//
// On return the refresh schedule is stopped and the broadcaster cancelled;
// queued notifications are delivered first.
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server or the
// Redis relay fails to start, if the HTTP server stops serving before ctx is
// done, or [ErrAlreadyStarted] on a second call.
func (lg *LiveGrid) Start(ctx context.Context) error {
	select {
	case lg.started <- struct{}{}:
	default:
		return ErrAlreadyStarted
	}
	defer lg.broadcaster.Cancel()

	lg.logger.Info("livegrid starting", "records", lg.store.Len())
	lg.logger.Info("refresh configured",
		"interval", lg.refreshInterval.String(),
		"initial_delay", lg.initialDelay.String(),
	)
	lg.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", lg.port))

	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	if lg.redisAddr != "" {
		rl, err := lg.startRelay(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := rl.Close(); err != nil {
				lg.logger.Warn("failed to close relay", "error", err)
			}
		}()
	}

	sweeper, err := janitor.New(lg.sweepSchedule, lg.broadcaster, lg.store, metrics.OrNoop(lg.metrics).StoreRecords, lg.logger)
	if err != nil {
		return err
	}

	var serverOpts []server.Option
	if lg.metrics != nil {
		serverOpts = append(serverOpts, server.WithMetrics(lg.metrics))
	}

	g, gctx := errgroup.WithContext(ctx)

	httpServer := server.NewServer(lg.store, lg.broadcaster, lg.port, dashboard.Assets, lg.title, lg.logger, serverOpts...)
	if err := httpServer.Start(gctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	scheduler := refresh.NewScheduler(lg.worker, lg.refreshInterval, lg.initialDelay, lg.publish, nil, lg.logger, lg.metrics)
	scheduler.Start(gctx)
	sweeper.Start()

	g.Go(func() error {
		select {
		case err, ok := <-httpServer.Err():
			if ok && err != nil {
				return fmt.Errorf("HTTP server failed: %w", err)
			}
		case <-gctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		scheduler.Stop()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sweeper.Stop()
		return nil
	})

	err = g.Wait()
	lg.logger.Info("livegrid stopped")
	return err
}

func (lg *LiveGrid) startRelay(ctx context.Context) (*relay.Relay, error) {
	pub, err := relay.NewRedisPublisher(ctx, lg.redisAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to start relay: %w", err)
	}
	rl := relay.New(pub, relay.WithChannel(lg.relayChannel), relay.WithLogger(lg.logger))
	if _, err := broadcast.Subscribe(lg.broadcaster, rl); err != nil {
		_ = rl.Close()
		return nil, fmt.Errorf("failed to start relay: %w", err)
	}
	lg.logger.Info("relay enabled", "addr", lg.redisAddr)
	return rl, nil
}

// publish hands a refresh batch to the broadcaster.
func (lg *LiveGrid) publish(batch store.ChangeBatch) {
	lg.broadcaster.Publish(batch)
}

// Store returns the record store.
func (lg *LiveGrid) Store() store.Store {
	return lg.store
}

// Broadcaster returns the broadcaster change batches are published on.
func (lg *LiveGrid) Broadcaster() *broadcast.Broadcaster {
	return lg.broadcaster
}

// Refresh runs one refresh cycle immediately and broadcasts its batch.
func (lg *LiveGrid) Refresh(ctx context.Context) ([]string, error) {
	batch, err := lg.worker.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	lg.publish(batch)
	return batch, nil
}

// Port returns the configured HTTP port for the dashboard server.
func (lg *LiveGrid) Port() int {
	return lg.port
}

// RefreshInterval returns the configured interval between refresh cycles.
func (lg *LiveGrid) RefreshInterval() time.Duration {
	return lg.refreshInterval
}

// InitialDelay returns the time before the first refresh cycle.
func (lg *LiveGrid) InitialDelay() time.Duration {
	return lg.initialDelay
}
