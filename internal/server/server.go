// Package server owns the HTTP server lifecycle.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Config holds HTTP server configuration.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default HTTP server configuration. WriteTimeout is
// zero: websocket connections stream for as long as a generation runs and
// enforce their own per-frame write deadlines.
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
}

// Drainer is waited on during Shutdown, after the listener stops and before
// the database closes.
type Drainer interface {
	Wait(ctx context.Context) error
}

// Server wraps the HTTP server and the database it closes on shutdown.
type Server struct {
	config   Config
	db       *sql.DB
	http     *http.Server
	logger   *zap.Logger
	drainers []Drainer

	// hijacked websocket connections are not tracked by http.Server, so
	// their sessions hang off this context and end when it is cancelled.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewServer creates a server for handler. db may be nil.
func NewServer(handler http.Handler, db *sql.DB, config Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseCtx, cancel := context.WithCancel(context.Background())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
		ErrorLog:     zap.NewStdLog(logger.Named("http")),
	}

	return &Server{
		config:     config,
		db:         db,
		http:       httpServer,
		logger:     logger,
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}
}

// WaitFor registers d to be drained by Shutdown. Call it before Start.
func (s *Server) WaitFor(d Drainer) {
	s.drainers = append(s.drainers, d)
}

// Addr returns the listen address.
func (s *Server) Addr() string { return s.http.Addr }

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting HTTP server", zap.String("addr", ln.Addr().String()))
	err := s.http.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, ends websocket sessions, waits for
// in-flight requests and registered drainers within ctx and closes the
// database. The database is closed even when draining times out.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	s.cancelBase()
	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}
	for _, d := range s.drainers {
		if err := d.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("session drain error: %w", err))
			break
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close error: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	s.logger.Info("server shutdown complete")
	return nil
}
