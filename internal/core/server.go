// Package core provides the API chassis for the Huddle backend.
// It creates a chi router served by standard HTTP and enforces the
// cross-cutting concerns -- security headers, logging, auth, rate limiting
// and error handling -- before requests reach domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"huddle/internal/config"
	"huddle/internal/types"
)

// Server encapsulates all dependencies for the Huddle API, allowing for
// easy injection during testing and distinct configuration for different
// environments.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Metrics       MetricsCollector
	Authenticator Authenticator     // Resolves tokens to Actors; injected for testability.
	RateLimiter   types.RateLimiter // Per-actor request throttling; nil disables.

	// HealthProbes are the subsystem checks executed by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars are called by MountRoutes to register domain handler
	// routes under /v1. Populated by the application entry point to avoid
	// import cycles between core and handler packages.
	V1RouteRegistrars []func(chi.Router)

	// closers run during Shutdown, in registration order.
	closers []func() error

	router *chi.Mux
}

// NewServer initializes dependencies, sets up the router, and prepares the
// server for route mounting. It performs a fail-fast check on critical
// dependencies.
//
// The caller is responsible for mounting routes (via MountRoutes) after
// construction. This separation allows tests to customize route registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// RegisterCloser adds a cleanup function invoked during Shutdown
// (database pools, queue clients).
func (s *Server) RegisterCloser(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Shutdown performs a graceful termination of server resources, running
// registered closers in order. The first closer error is returned after all
// closers have run.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var firstErr error
	for _, closer := range s.closers {
		if err := closer(); err != nil {
			s.Logger.Error("error closing resource", "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("closing server resource: %w", err)
			}
		}
	}

	s.Logger.Info("server shutdown complete")
	return firstErr
}
