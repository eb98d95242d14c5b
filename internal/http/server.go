// Package http hosts the transcoded REST API: chi for routing and raw
// endpoints, huma for the OpenAPI-described operations.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mediaspool/transcoded/internal/config"
	"github.com/mediaspool/transcoded/internal/http/middleware"
	"github.com/mediaspool/transcoded/internal/version"
)

// Server hosts the REST API.
type Server struct {
	cfg    config.ServerConfig
	router chi.Router
	api    huma.API
	http   *http.Server
	logger *slog.Logger
}

// New creates the server and wires the middleware chain. Routes are
// registered by the callers through API() and Router().
func New(cfg config.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.SkipCompressionForSSE(chimiddleware.Compress(5)))

	humaCfg := huma.DefaultConfig(version.ApplicationName, version.Version)
	humaCfg.Info.Description = "Video transcoding service"
	api := humachi.New(r, humaCfg)

	// WriteTimeout would sever long-lived event streams, so only read-side
	// timeouts are enforced here.
	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
	}

	return &Server{
		cfg:    cfg,
		router: r,
		api:    api,
		http:   srv,
		logger: logger.With(slog.String("component", "http_server")),
	}
}

// API returns the huma API for operation registration.
func (s *Server) API() huma.API { return s.api }

// Router returns the chi router for raw route registration.
func (s *Server) Router() chi.Router { return s.router }

// Start serves until Shutdown is called. It blocks.
func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
