// Package server hosts the dashboard REST API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/nrguardian/nrguardian/internal/config"
	"github.com/nrguardian/nrguardian/internal/dashboard"
	apperrors "github.com/nrguardian/nrguardian/internal/errors"
	"github.com/nrguardian/nrguardian/internal/schema"
	"github.com/nrguardian/nrguardian/internal/server/handlers"
	servermw "github.com/nrguardian/nrguardian/internal/server/middleware"
)

// Options carries the server dependencies.
type Options struct {
	Config     *config.Config
	Logger     *zap.Logger
	Dashboards *dashboard.Service
	Schema     *schema.Service
	Version    string
}

// Server is the HTTP server for the dashboard API.
type Server struct {
	router *chi.Mux
	server *http.Server
	logger *zap.Logger
	cfg    config.ServerConfig
}

// New assembles the router and middleware stack.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Dashboards == nil || opts.Schema == nil {
		return nil, fmt.Errorf("dashboard and schema services are required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	responder := &apperrors.Responder{
		Logger:       logger,
		IncludeStack: !opts.Config.Server.Production,
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestLogger(logger))
	r.Use(servermw.Recovery(logger, !opts.Config.Server.Production))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		responder.RespondWithEnvelope(w, req, apperrors.NewNotFoundError("the requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		responder.RespondWithEnvelope(w, req, apperrors.NewInvalidInputError("the requested method is not allowed for this resource"))
	})

	h := &handlers.Handlers{
		Dashboards: opts.Dashboards,
		Schema:     opts.Schema,
		AccountID:  opts.Config.AccountID,
		Version:    opts.Version,
		Responder:  responder,
	}

	s := &Server{
		router: r,
		logger: logger,
		cfg:    opts.Config.Server,
	}
	s.registerRoutes(h)

	return s, nil
}

// Start runs the HTTP server until it fails or is shut down.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  orDuration(s.cfg.ReadTimeout, 30*time.Second),
		WriteTimeout: orDuration(s.cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:  orDuration(s.cfg.IdleTimeout, 120*time.Second),
	}

	s.logger.Info("starting dashboard API server", zap.String("addr", addr))

	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down dashboard API server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.cfg.Port
}

func orDuration(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}
