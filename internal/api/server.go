package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/wonny/portfolioviz/pkg/config"
	"github.com/wonny/portfolioviz/pkg/logger"
)

// Server represents the dashboard HTTP server
// ⭐ SSOT: HTTP 서버 설정은 이 파일에서만
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
	config     *config.Config
}

// New creates a new HTTP server
// WriteTimeout stays zero: /ws connections are long-lived and set their own write deadlines.
func New(cfg *config.Config, log *logger.Logger, router http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: log,
		config: cfg,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.WithFields(map[string]interface{}{
		"port":    s.config.Port,
		"env":     s.config.Env,
		"backend": s.config.Backend.BaseURL,
	}).Info("Starting dashboard server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down dashboard server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}
