package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/vitwit/storefront/logger"
)

// ServerConfig holds the listener settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server represents the HTTP server lifecycle.
type Server struct {
	httpServer *http.Server
	logger     logger.Logger
}

// NewServer constructs a Server for handler.
func NewServer(log logger.Logger, cfg ServerConfig, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: log,
	}
}

// Start begins listening for HTTP traffic and blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("starting http server", map[string]any{"addr": s.httpServer.Addr})
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully terminates all active connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server", nil)
	return s.httpServer.Shutdown(ctx)
}
