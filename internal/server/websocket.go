package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait    = 5 * time.Second
	wsPingInterval = 30 * time.Second
	wsRetryDelay   = 200 * time.Millisecond
	wsMaxRetries   = 3
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsSession serializes writes to one WebSocket connection.
type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// writeJSON sends v, retrying transient failures with a constant backoff.
// Every attempt is bounded by its own write deadline.
func (s *wsSession) writeJSON(ctx context.Context, v any, notify backoff.Notify) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	operation := func() error {
		if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
			return backoff.Permanent(err)
		}
		err := s.conn.WriteJSON(v)
		if errors.Is(err, websocket.ErrCloseSent) {
			return backoff.Permanent(err)
		}
		return err
	}

	strategy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(wsRetryDelay), wsMaxRetries),
		ctx,
	)
	return backoff.RetryNotify(operation, strategy, notify)
}

func (s *wsSession) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (s *wsSession) close(code int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteWait))
}

// handleWebSocket streams a live grid over a WebSocket connection.
//
// Incoming messages are read and discarded; reading is how a closed
// connection is noticed.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	grid, loop, err := s.openGrid(ctx)
	if loop != nil {
		defer loop.Wait()
	}
	defer cancel()
	if err != nil {
		s.logger.Warn("websocket grid unavailable", "error", err)
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	defer grid.Detach()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	session := &wsSession{conn: conn}
	logger := s.logger.With("grid", grid.ID())
	logger.Debug("websocket client connected")
	defer logger.Debug("websocket client disconnected")

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	notify := func(err error, d time.Duration) {
		logger.Warn("retrying websocket write", "error", err, "next_attempt", d.String())
	}

	if err := session.writeJSON(ctx, initialEvent(grid), notify); err != nil {
		logger.Warn("websocket write failed", "error", err)
		return
	}

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-grid.Events():
			if err := session.writeJSON(ctx, ev, notify); err != nil {
				logger.Warn("websocket write failed", "error", err)
				return
			}

		case <-ticker.C:
			if err := session.ping(); err != nil {
				return
			}

		case <-ctx.Done():
			if r.Context().Err() != nil {
				session.close(websocket.CloseGoingAway, "server shutting down")
			}
			return
		}
	}
}
