package transport

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// ServerConfig holds the plain HTTP-level tunables, separate from the
// per-connection Config above. Grounded in vango-go-vango's
// ServerConfig/Run/Shutdown (pkg/server/server.go): listen address, header
// timeouts, and a bounded graceful-shutdown window.
type ServerConfig struct {
	Address           string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

// DefaultServerConfig mirrors vango-go-vango's defaults.
func DefaultServerConfig(addr string) ServerConfig {
	return ServerConfig{
		Address:           addr,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   10 * time.Second,
	}
}

// Server is a minimal net/http wrapper that runs a handler (typically a
// Router) until an interrupt signal or an explicit Shutdown.
type Server struct {
	config     ServerConfig
	handler    http.Handler
	log        *slog.Logger
	httpServer *http.Server
}

// NewServer builds a Server around handler, ready for Run.
func NewServer(config ServerConfig, handler http.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{config: config, handler: handler, log: log}
}

// Run blocks, serving until an OS interrupt/SIGTERM is received (in which
// case it shuts down gracefully) or the listener itself errors.
func (s *Server) Run() error {
	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           s.handler,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("weave: server starting", "address", s.config.Address)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-shutdown:
		s.log.Info("weave: shutting down")
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully stops the HTTP server, bounded by
// config.ShutdownTimeout. Live sessions are left to close naturally as
// their websocket connections drop (spec.md §7: a transport interruption
// preserves session state; it does not require a coordinated drain).
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Error("weave: shutdown error", "error", err)
		return err
	}
	s.log.Info("weave: server shutdown complete")
	return nil
}
