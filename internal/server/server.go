package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/m1kah/livegrid/internal/broadcast"
	"github.com/m1kah/livegrid/internal/metrics"
	"github.com/m1kah/livegrid/internal/store"
	"github.com/m1kah/livegrid/internal/view"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown of in-flight requests.
	shutdownTimeout = 5 * time.Second

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "livegrid"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// Option configures a [Server].
type Option func(*Server)

// WithMetrics exposes m at GET /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server handles HTTP requests for the livegrid dashboard and API.
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store       store.Store
	broadcaster *broadcast.Broadcaster
	metrics     *metrics.Metrics
	port        int
	httpServer  *http.Server
	assets      fs.FS
	title       string
	logger      *slog.Logger

	mu       sync.Mutex
	addr     string
	listener net.Listener
	errc     chan error
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: Store the grids read records from
//   - b: Broadcaster every streaming connection subscribes to
//   - port: TCP port to listen on (0 picks a free port)
//   - assets: Embedded filesystem containing dashboard assets (may be nil)
//   - title: Dashboard title (defaults to "livegrid" if empty)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, b *broadcast.Broadcaster, port int, assets fs.FS, title string, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:       st,
		broadcaster: b,
		port:        port,
		assets:      assets,
		title:       title,
		logger:      logger,
		errc:        make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/records", s.handleRecords)
		r.Get("/sse", s.handleSSE)
		r.Get("/ws", s.handleWebSocket)
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	// serve dashboard assets
	if s.assets != nil {
		r.Get("/", s.handleDashboard)
	}
	return r
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.listener = ln
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		defer close(s.errc)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
			s.errc <- err
		}
	}()

	s.logger.Info("http server listening", "addr", s.Addr())

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// Err returns a channel that receives the error that stopped the server
// from serving, if any. It is closed once serving has ended.
func (s *Server) Err() <-chan error {
	return s.errc
}

// Addr returns the address the server is listening on, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if s.assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// read index.html from embedded assets
	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.title
	if title == "" {
		title = defaultTitle
	}
	safeTitle := html.EscapeString(title)
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, safeTitle)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// handleRecords returns every record as JSON, in store order.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	records := s.store.FindAll()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(records); err != nil {
		s.logger.Error("failed to encode records response", "error", err)
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	Records     int    `json:"records"`
	Subscribers int    `json:"subscribers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Records: s.store.Len()}
	if s.broadcaster != nil {
		resp.Subscribers = s.broadcaster.Len()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode health response", "error", err)
	}
}

// openGrid creates a grid for one streaming connection and attaches it.
// The grid's loop stops when ctx is cancelled.
func (s *Server) openGrid(ctx context.Context) (*view.Grid, *view.Loop, error) {
	if s.broadcaster == nil {
		return nil, nil, broadcast.ErrCancelled
	}
	loop := view.NewLoop(ctx, 0, s.logger)
	grid := view.NewGrid(s.store,
		view.WithExecutor(loop.Execute),
		view.WithLogger(s.logger),
	)
	if err := grid.Attach(s.broadcaster); err != nil {
		return nil, loop, err
	}
	return grid, loop, nil
}

// initialEvent describes a grid before any batch has been applied.
func initialEvent(g *view.Grid) view.RowsChanged {
	rows := g.Snapshot()
	return view.RowsChanged{
		Caption: g.Caption(),
		Rows:    rows,
		Total:   len(rows),
	}
}

// handleSSE streams a live grid via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// check if flushing is supported
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	grid, loop, err := s.openGrid(ctx)
	if loop != nil {
		defer loop.Wait()
	}
	defer cancel()
	if err != nil {
		s.logger.Warn("sse grid unavailable", "error", err)
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	defer grid.Detach()

	// ResponseController provides deadline-aware write and flush operations.
	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				// deadline not supported by underlying connection, continue without
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}

		// ResponseController.Flush respects the write deadline
		return rc.Flush()
	}

	writeEvent := func(ev view.RowsChanged) error {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("failed to encode grid event", "error", err)
			return nil
		}
		return writeAndFlush(data)
	}

	// set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	s.logger.Debug("sse client connected", "grid", grid.ID())
	defer s.logger.Debug("sse client disconnected", "grid", grid.ID())

	if err := writeEvent(initialEvent(grid)); err != nil {
		return
	}

	for {
		select {
		case ev := <-grid.Events():
			if err := writeEvent(ev); err != nil {
				return
			}

		case <-ctx.Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}
