// Package api binds the drip engine to HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/postify/drip-engine/internal/config"
)

// Server wraps the router in an http.Server.
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	server  *http.Server
}

// NewServer creates a server for the given handlers.
func NewServer(cfg config.ServerConfig, h *Handlers, health *HealthChecker, metrics http.Handler) *Server {
	return &Server{
		config:  cfg,
		handler: SetupRoutes(h, health, metrics, RouteOptions{AllowedOrigins: cfg.AllowedOrigins, AdminToken: cfg.AdminToken}),
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.server = &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
