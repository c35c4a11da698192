package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/arcflow/conductor/pkg/config"
	"github.com/arcflow/conductor/pkg/dlq"
	"github.com/arcflow/conductor/pkg/observability"
	"github.com/arcflow/conductor/pkg/orchestrator"
	"github.com/arcflow/conductor/pkg/storage"
)

// shutdownGrace bounds how long Stop waits for in-flight requests and
// background task goroutines before giving up.
const shutdownGrace = 10 * time.Second

// Options configures a Server.
type Options struct {
	Config *config.ServerConfig

	Orchestrator  *orchestrator.Orchestrator
	Storage       storage.Adapter
	DLQ           *dlq.Queue
	Observability *observability.Manager

	Logger *slog.Logger
}

// Server is the HTTP front door over the orchestration runtime: submit a
// task, poll it, inspect its checkpoints, and manage its dead-letter
// entries. It follows the reference server's Start/Wait/Stop lifecycle,
// trimmed to a single chi-backed transport instead of the paired gRPC/REST
// gateway the A2A surface used.
type Server struct {
	cfg *config.ServerConfig

	orchestrator *orchestrator.Orchestrator
	storage      storage.Adapter
	dlq          *dlq.Queue
	obs          *observability.Manager
	logger       *slog.Logger

	httpServer *http.Server

	wg       sync.WaitGroup // background task executions in flight
	stopChan chan struct{}
	doneChan chan struct{}
}

// New builds a Server from its collaborators. The caller retains ownership
// of Orchestrator/Storage/DLQ/Observability and is responsible for
// shutting down anything Stop doesn't already close.
func New(opts Options) (*Server, error) {
	if opts.Orchestrator == nil {
		return nil, fmt.Errorf("server: an orchestrator is required")
	}
	if opts.Storage == nil {
		return nil, fmt.Errorf("server: a storage adapter is required")
	}
	if opts.DLQ == nil {
		return nil, fmt.Errorf("server: a dlq queue is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.ServerConfig{Host: "0.0.0.0", Port: 8080}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:          cfg,
		orchestrator: opts.Orchestrator,
		storage:      opts.Storage,
		dlq:          opts.DLQ,
		obs:          opts.Observability,
		logger:       logger,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	s.httpServer = &http.Server{
		Addr:         s.addr(),
		Handler:      s.router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s, nil
}

func (s *Server) addr() string {
	host := s.cfg.Host
	if host == "" {
		host = "0.0.0.0"
	}
	port := s.cfg.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", host, port)
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	if s.obs != nil && (s.obs.TracingEnabled() || s.obs.MetricsEnabled()) {
		r.Use(observability.HTTPMiddleware(s.obs.Tracer(), s.obs.Metrics()))
	}

	r.Post("/tasks", s.handleSubmitTask)
	r.Get("/tasks/{id}", s.handleGetTask)
	r.Get("/checkpoints", s.handleListCheckpoints)
	r.Get("/dlq", s.handleListDLQ)
	r.Post("/dlq/{id}/retry", s.handleRetryDLQ)

	if s.obs != nil && s.obs.MetricsEnabled() {
		r.Get(s.obs.MetricsEndpoint(), func(w http.ResponseWriter, r *http.Request) {
			s.obs.MetricsHandler().ServeHTTP(w, r)
		})
	}
	return r
}

// Start brings the HTTP transport up and returns once it's accepting
// connections; the serve loop and signal handling run in the background
// until Stop or an OS signal arrives.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
			return
		}
		errChan <- nil
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server: starting listener: %w", err)
		}
	case <-time.After(200 * time.Millisecond):
		// past the common bind-failure window; assume it's up.
	}

	go s.runLifecycle(ctx, errChan)
	return nil
}

// runLifecycle waits for an OS signal, an explicit Stop, or a listener
// error, then runs cleanup exactly once.
func (s *Server) runLifecycle(ctx context.Context, errChan chan error) {
	defer close(s.doneChan)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		s.logger.Info("shutting down on signal", "signal", sig)
	case <-s.stopChan:
		s.logger.Info("shutting down")
	case err := <-errChan:
		if err != nil {
			s.logger.Error("listener failed", "error", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	s.cleanup(shutdownCtx)
}

func (s *Server) cleanup(ctx context.Context) {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("http server shutdown", "error", err)
	}

	waitDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-ctx.Done():
		s.logger.Warn("background tasks still running at shutdown deadline")
	}

	if s.obs != nil {
		if err := s.obs.Shutdown(ctx); err != nil {
			s.logger.Error("observability shutdown", "error", err)
		}
	}
}

// Wait blocks until the server has fully shut down.
func (s *Server) Wait() {
	<-s.doneChan
}

// Stop requests a graceful shutdown and waits for it to complete.
func (s *Server) Stop(ctx context.Context) error {
	select {
	case <-s.stopChan:
		// already stopping
	default:
		close(s.stopChan)
	}
	select {
	case <-s.doneChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
