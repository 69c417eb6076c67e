// Package httpserver wraps net/http with graceful shutdown and structured
// logging, so binaries only supply an address and a handler.
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var (
	// ErrStart is returned when the server fails to start or exits with
	// an error other than a clean shutdown.
	ErrStart = errors.New("http server failed")
	// ErrShutdown is returned when graceful shutdown does not complete
	// within the configured timeout.
	ErrShutdown = errors.New("http server shutdown failed")
)

type config struct {
	addr              string
	readHeaderTimeout time.Duration
	shutdownTimeout   time.Duration
	log               *slog.Logger
}

// Option configures a Server.
type Option func(*config)

func WithAddr(addr string) Option {
	return func(c *config) {
		if addr != "" {
			c.addr = addr
		}
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.shutdownTimeout = d
		}
	}
}

func WithReadHeaderTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.readHeaderTimeout = d
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// Server runs an http.Server until its context is canceled or the process
// receives SIGINT or SIGTERM, then shuts down gracefully.
type Server struct {
	cfg config
}

func New(opts ...Option) *Server {
	cfg := config{
		addr:              ":8080",
		readHeaderTimeout: 5 * time.Second,
		shutdownTimeout:   10 * time.Second,
		log:               slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{cfg: cfg}
}

// Run starts the server and blocks. It returns nil after a clean shutdown,
// ErrStart if serving fails, ErrShutdown if the graceful stop times out.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	srv := &http.Server{
		Addr:              s.cfg.addr,
		Handler:           handler,
		ReadHeaderTimeout: s.cfg.readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.cfg.log.Info("http server listening", slog.String("addr", s.cfg.addr))
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errCh:
		return errors.Join(ErrStart, err)
	case <-ctx.Done():
		s.cfg.log.Info("http server stopping", slog.String("reason", "context canceled"))
	case sig := <-stop:
		s.cfg.log.Info("http server stopping", slog.String("reason", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Join(ErrShutdown, err)
	}

	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return errors.Join(ErrStart, err)
	}
	return nil
}
