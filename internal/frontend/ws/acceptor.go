// Package ws serves bridge clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/bridge/internal/config"
	"github.com/cory-johannsen/bridge/internal/game/room"
	"github.com/cory-johannsen/bridge/internal/game/session"
	"github.com/cory-johannsen/bridge/internal/observability"
)

// EventHandler reacts to the lifecycle and inbound frames of a connection.
type EventHandler interface {
	OnConnect(ctx context.Context, connID string) error
	Dispatch(ctx context.Context, connID string, data []byte)
	OnDisconnect(ctx context.Context, connID string)
}

// StatsSource reports room occupancy for the health endpoint.
type StatsSource interface {
	Stats() room.Stats
}

// Health is the body served at /healthz.
type Health struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Database    string `json:"database,omitempty"`
	room.Stats
}

// Option configures an Acceptor.
type Option func(*Acceptor)

// WithDatabaseCheck reports the result of check in the health body. A failing
// check marks the server degraded without taking it out of service.
func WithDatabaseCheck(check func(ctx context.Context) error) Option {
	return func(a *Acceptor) {
		a.dbCheck = check
	}
}

// Acceptor listens for HTTP upgrades on the configured path and runs one
// read loop and one writer per connection.
type Acceptor struct {
	cfg      config.WebsocketConfig
	handler  EventHandler
	sessions *session.Manager
	stats    StatsSource
	logger   *zap.Logger
	dbCheck  func(ctx context.Context) error

	ctx    context.Context
	cancel context.CancelFunc

	srv      *http.Server
	listener net.Listener
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewAcceptor creates a WebSocket acceptor.
//
// Precondition: handler, sessions, stats, and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.WebsocketConfig, handler EventHandler, sessions *session.Manager, stats StatsSource, logger *zap.Logger, opts ...Option) *Acceptor {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Acceptor{
		cfg:      cfg,
		handler:  handler,
		sessions: sessions,
		stats:    stats,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.srv = &http.Server{
		Handler:           a.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a
}

// Routes returns the HTTP handler serving the upgrade path and /healthz,
// plus the client files under "/" when a static directory is configured.
func (a *Acceptor) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+a.cfg.Path, a.websocketHandler)
	mux.HandleFunc("GET /healthz", a.healthHandler)
	if a.cfg.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(a.cfg.StaticDir)))
	}
	return mux
}

// ListenAndServe starts the listener and serves until Stop is called.
// This method blocks until the acceptor is stopped.
//
// Precondition: The acceptor must not already be running.
// Postcondition: Returns nil after Stop, or the listen/serve error.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	a.mu.Lock()
	a.listener = listener
	a.running = true
	a.mu.Unlock()

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", a.cfg.Path),
		zap.String("static_dir", a.cfg.StaticDir),
		zap.Duration("startup", time.Since(start)),
	)

	if err := a.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket: %w", err)
	}
	return nil
}

// Stop closes the listener, ends every live connection, and waits for their
// goroutines to exit or ctx to expire.
//
// Postcondition: No new connections are accepted.
func (a *Acceptor) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	a.cancel()
	err := a.srv.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for connections: %w", ctx.Err())
	}

	a.logger.Info("websocket acceptor stopped")
	return err
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// isRunning reports whether the acceptor is currently accepting connections.
func (a *Acceptor) isRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *Acceptor) healthHandler(w http.ResponseWriter, r *http.Request) {
	body := Health{
		Status:      "ok",
		Connections: a.sessions.Count(),
		Stats:       a.stats.Stats(),
	}
	if a.dbCheck != nil {
		body.Database = "ok"
		if err := a.dbCheck(r.Context()); err != nil {
			a.logger.Warn("database health check failed", zap.Error(err))
			body.Status = "degraded"
			body.Database = "unavailable"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Warn("writing health response", zap.Error(err))
	}
}

func (a *Acceptor) websocketHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: a.cfg.OriginPatterns,
	})
	if err != nil {
		a.logger.Warn("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	a.wg.Add(1)
	defer a.wg.Done()
	a.serve(socket, r.RemoteAddr)
}

// serve runs one connection from registration to teardown.
func (a *Acceptor) serve(socket *websocket.Conn, remoteAddr string) {
	start := time.Now()
	connID := uuid.NewString()
	log := observability.ForConnection(a.logger, connID, remoteAddr)

	conn, err := a.sessions.Register(connID, remoteAddr)
	if err != nil {
		log.Error("registering connection", zap.Error(err))
		socket.Close(websocket.StatusInternalError, "registration failed")
		return
	}
	log.Info("client connected")

	ctx, cancel := context.WithCancel(a.ctx)
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		a.writeLoop(ctx, socket, conn.Outbox, log)
	}()

	if err := a.handler.OnConnect(ctx, connID); err != nil {
		log.Error("connect handler failed", zap.Error(err))
	} else {
		a.readLoop(ctx, socket, connID, log)
	}

	a.handler.OnDisconnect(context.WithoutCancel(ctx), connID)
	if err := a.sessions.Unregister(connID); err != nil {
		log.Warn("unregistering connection", zap.Error(err))
	}
	<-writerDone

	socket.Close(websocket.StatusNormalClosure, "")
	log.Info("client disconnected", zap.Duration("duration", time.Since(start)))
}

func (a *Acceptor) readLoop(ctx context.Context, socket *websocket.Conn, connID string, log *zap.Logger) {
	for {
		readCtx, cancel := ctx, context.CancelFunc(func() {})
		if a.cfg.ReadTimeout > 0 {
			readCtx, cancel = context.WithTimeout(ctx, a.cfg.ReadTimeout)
		}
		_, data, err := socket.Read(readCtx)
		cancel()
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Debug("client closed connection")
			default:
				if ctx.Err() == nil {
					log.Debug("read loop ended", zap.Error(err))
				}
			}
			return
		}
		a.handler.Dispatch(ctx, connID, data)
	}
}

func (a *Acceptor) writeLoop(ctx context.Context, socket *websocket.Conn, outbox *session.Outbox, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-outbox.Frames():
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, a.cfg.WriteTimeout)
			err := socket.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				log.Debug("write failed", zap.Error(err))
				return
			}
		}
	}
}
