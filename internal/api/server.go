package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gatherhq/batch-jobs-service/internal/config"
)

// Server represents the API server.
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg config.ServerConfig, h *Handlers) *Server {
	router := SetupRoutes(h)
	return &Server{
		config:  cfg,
		handler: router,
		router:  router,
	}
}

// ListenAndServe starts the HTTP server. Triggers return 202 immediately, so
// the write timeout only needs to cover validation plus the ledger insert.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
