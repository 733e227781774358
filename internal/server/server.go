// Package server wires the chi router, middleware chain and handlers
// into an http.Server with graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ladleworks/reelchef/internal/server/handlers"
	"github.com/ladleworks/reelchef/internal/server/middleware"
	"github.com/ladleworks/reelchef/pkg/broadcast"
)

// Options configures the HTTP surface.
type Options struct {
	Host            string
	Port            int
	Version         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Jobs     handlers.JobService
	Registry *broadcast.Registry
	Verifier middleware.TokenVerifier
	Logger   *zap.Logger
}

// Server is the HTTP surface.
type Server struct {
	opts   Options
	router chi.Router
	logger *zap.Logger
}

// New builds the router. The server does not listen until Start.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Server{opts: opts, logger: opts.Logger}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestLogger(s.logger))

	r.NotFound(middleware.NotFoundHandler())
	r.MethodNotAllowed(middleware.MethodNotAllowedHandler())

	r.Get("/health", handlers.Health(s.opts.Version))

	jobs := handlers.NewJobs(s.opts.Jobs, s.logger)
	events := handlers.NewEvents(s.opts.Registry, s.opts.Verifier, s.logger)

	r.Route("/v1", func(r chi.Router) {
		// The event stream authenticates after the WebSocket upgrade,
		// so it sits outside the Auth middleware.
		r.Get("/jobs/{id}/events", events.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(s.opts.Verifier))
			r.Post("/jobs", jobs.Submit)
			r.Get("/jobs/{id}", jobs.Status)
		})
	})

	return r
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
