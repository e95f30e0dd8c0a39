// File: internal/mcp/server.go

// Package mcp hosts the HTTP command surface: a JSON command envelope for
// starting, polling, and cancelling browser-agent jobs, plus a synchronous
// browse path for short tasks.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/decision"
	"github.com/xkilldash9x/webpilot/internal/jobs"
)

// Server hosts the persistent browser manager, the job registry, and the
// HTTP listener.
type Server struct {
	cfg        *config.Config
	logger     *zap.Logger
	httpServer *http.Server

	browsers *browser.Manager
	decider  decision.Client
	jobs     *jobs.Manager
	handlers *Handlers
}

// NewServer initializes the server and its dependencies. The decision
// client is constructed eagerly so a missing API key fails at startup, not
// on the first job.
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	decider, err := decision.NewGemini(ctx, cfg.Gemini, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize decision client: %w", err)
	}

	browsers := browser.NewManager(cfg.Browser, logger)

	s := &Server{
		cfg:      cfg,
		logger:   logger.Named("mcp"),
		browsers: browsers,
		decider:  decider,
	}

	s.jobs = jobs.NewManager(s.newRunner, logger)
	s.handlers = NewHandlers(logger, s.jobs, s.runTask, cfg.Artifacts.Dir)

	logger.Info("MCP server initialized.",
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.String("artifacts_dir", cfg.Artifacts.Dir))
	return s, nil
}

// newRunner is the jobs.RunnerFactory: one browser tab, one artifact
// session, one agent per job.
func (s *Server) newRunner(ctx context.Context) (jobs.Runner, error) {
	tab, err := s.browsers.NewSession(ctx)
	if err != nil {
		return nil, err
	}

	artifacts, err := agent.NewSession(s.cfg.Artifacts.Dir)
	if err != nil {
		tab.Close(context.Background())
		return nil, err
	}

	return agent.New(tab, s.decider, artifacts, agent.ConfigFrom(s.cfg), s.logger), nil
}

// runTask backs the synchronous browse command with a throwaway runner.
func (s *Server) runTask(ctx context.Context, task, startURL string) (*agent.Result, error) {
	runner, err := s.newRunner(ctx)
	if err != nil {
		return nil, err
	}
	defer runner.Teardown()
	return runner.Run(ctx, task, startURL)
}

// Start runs the HTTP listener and blocks until a shutdown signal arrives.
func (s *Server) Start() error {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Synchronous browse runs a full agent loop inside one request.
	r.Use(middleware.Timeout(10 * time.Minute))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Logger)
		s.handlers.RegisterRoutes(r)
	})

	s.httpServer = &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: r,
	}

	s.logger.Info("MCP server starting.", zap.String("address", s.cfg.Server.ListenAddr))

	// Periodically drop finished job records past their retention window.
	gcCtx, gcCancel := context.WithCancel(context.Background())
	go s.runGC(gcCtx)

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		s.logger.Info("Received shutdown signal, shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// 1. Stop accepting new commands.
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}

		// 2. Stop the GC loop and cancel live jobs.
		gcCancel()
		if err := s.jobs.Shutdown(ctx); err != nil {
			s.logger.Error("Job manager shutdown error", zap.Error(err))
		}

		// 3. Tear down the browser process last; jobs hold tabs on it.
		if err := s.browsers.Shutdown(ctx); err != nil {
			s.logger.Error("Browser manager shutdown error", zap.Error(err))
		}

		close(idleConnsClosed)
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("HTTP server ListenAndServe error", zap.Error(err))
		gcCancel()
		s.jobs.Shutdown(context.Background())
		s.browsers.Shutdown(context.Background())
		return err
	}

	<-idleConnsClosed
	s.logger.Info("MCP server stopped.")
	return nil
}

// runGC sweeps the job registry on the configured interval.
func (s *Server) runGC(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Jobs.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.jobs.GarbageCollect(s.cfg.Jobs.MaxAge)
		case <-ctx.Done():
			return
		}
	}
}
