package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rhuss/relay/pkg/transport"
)

// Drainer is implemented by handlers that keep working after the HTTP
// response was written (async queries). The server waits on it during
// graceful shutdown.
type Drainer interface {
	Wait(ctx context.Context) error
}

// Server wraps an http.Server with the transport adapter and manages
// the full lifecycle including startup and graceful shutdown.
type Server struct {
	httpServer *http.Server
	adapter    *Adapter
	drainer    Drainer
	config     ServerConfig
	logger     *slog.Logger
}

// ServerConfig holds configuration for the transport server.
type ServerConfig struct {
	Addr            string
	MaxBodySize     int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MetricsPath     string
	CORSOrigins     []string
	Logger          *slog.Logger
}

// DefaultServerConfig returns a ServerConfig with sensible defaults. The
// write timeout covers a full synchronous query, planner and reporter
// calls included.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8000",
		MaxBodySize:     1 << 20, // 1 MB
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    15 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		MetricsPath:     "/metrics",
		CORSOrigins:     []string{"*"},
		Logger:          slog.Default(),
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.config.Addr = addr }
}

// WithMaxBodySize sets the maximum request body size.
func WithMaxBodySize(n int64) ServerOption {
	return func(s *Server) { s.config.MaxBodySize = n }
}

// WithTimeouts sets the read and write deadlines of the HTTP server.
func WithTimeouts(read, write time.Duration) ServerOption {
	return func(s *Server) {
		s.config.ReadTimeout = read
		s.config.WriteTimeout = write
	}
}

// WithShutdownTimeout sets the graceful shutdown deadline.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ShutdownTimeout = d }
}

// WithMetricsPath sets the Prometheus endpoint path. Empty disables it.
func WithMetricsPath(path string) ServerOption {
	return func(s *Server) { s.config.MetricsPath = path }
}

// WithCORSOrigins sets the allowed CORS origins. Empty disables CORS.
func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) { s.config.CORSOrigins = origins }
}

// WithDrainer registers work the server waits for before it exits.
func WithDrainer(d Drainer) ServerOption {
	return func(s *Server) { s.drainer = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.config.Logger = l; s.logger = l }
}

// NewServer creates a new transport server. The TraceReader is optional
// (nil disables the trace endpoints). Default middleware (recovery,
// correlation ID, logging) is applied automatically.
func NewServer(queries transport.QueryHandler, traces transport.TraceReader, opts ...ServerOption) *Server {
	s := &Server{
		config: DefaultServerConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	adapterCfg := Config{
		MaxBodySize: s.config.MaxBodySize,
		MetricsPath: s.config.MetricsPath,
		CORSOrigins: s.config.CORSOrigins,
	}

	defaultMW := []transport.Middleware{
		transport.Recovery(),
		transport.CorrelationID(),
		transport.Logging(s.logger),
	}

	s.adapter = NewAdapter(queries, traces, adapterCfg, defaultMW...)

	s.httpServer = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.adapter.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the server and blocks until a shutdown signal
// (SIGINT or SIGTERM) is received. It then gracefully shuts down,
// waiting for in-flight requests to complete within the configured timeout.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.Run(ctx)
}

// Run serves on the configured address until ctx is done, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server starting", slog.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down gracefully", slog.Duration("timeout", s.config.ShutdownTimeout))
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	if s.drainer != nil {
		if err := s.drainer.Wait(shutdownCtx); err != nil {
			s.logger.Error("background queries did not finish", slog.String("error", err.Error()))
			return err
		}
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown gracefully shuts down the server with the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	if s.drainer != nil {
		return s.drainer.Wait(ctx)
	}
	return nil
}
