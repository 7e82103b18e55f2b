// Package api provides the HTTP chassis for the LoveBirdz admin API.
// It builds a chi router with cross-cutting middleware (panic recovery,
// request timeouts, correlation IDs, structured request logging) and leaves
// domain route registration to the handler packages via registrars, which
// avoids import cycles between the chassis and the handlers.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"lovebirdz/internal/config"
)

// defaultRequestTimeout is the soft timeout applied to request contexts.
// Kept above the billing call timeout so a slow provider call surfaces as a
// billing timeout error rather than a blunt context cancellation.
const defaultRequestTimeout = 29 * time.Second

// RouteRegistrar mounts a handler's routes onto the /v1 group.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the HTTP chassis dependencies, allowing injection
// during testing and distinct configuration for different environments.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// V1RouteRegistrars is populated by the application entry point before
	// MountRoutes is called.
	V1RouteRegistrars []RouteRegistrar

	router *chi.Mux
}

// NewServer initializes the chassis and prepares the router for route
// mounting. It fails fast on missing critical dependencies.
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
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// MountRoutes registers the global middleware chain, the /v1 API group, and
// the health check endpoint.
//
// Middleware order: Recoverer outermost so every panic is caught, then the
// request deadline, then correlation ID so the logger can include it.
func (s *Server) MountRoutes() {
	s.router.Use(Recoverer(s.Logger))
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger))

	s.router.Route("/v1", func(r chi.Router) {
		for _, registrar := range s.V1RouteRegistrars {
			registrar(r)
		}
	})

	s.router.Get("/health", s.handleHealth)
}

// handleHealth reports process liveness. It deliberately touches no
// downstream dependency so that a degraded provider never fails the probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, APIResponse{Data: map[string]string{
		"status":  "ok",
		"service": s.Config.Service,
	}})
}
