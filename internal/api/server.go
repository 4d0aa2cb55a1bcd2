// Package api implements the HTTP surface of groupsift: the inbound
// webhook endpoint, the read-side dashboard endpoints, and health checks.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/benzvi/groupsift/internal/config"
	"github.com/benzvi/groupsift/internal/database"
	"github.com/benzvi/groupsift/internal/ingest"
)

// MessageProcessor handles one inbound webhook payload end to end.
type MessageProcessor interface {
	Process(ctx context.Context, payload *ingest.WebhookPayload) error
}

// Server hosts the HTTP endpoints.
type Server struct {
	cfg       config.ServerConfig
	log       *slog.Logger
	processor MessageProcessor
	store     database.Store
	srv       *http.Server
}

// NewServer creates the HTTP server with all routes registered.
func NewServer(cfg config.ServerConfig, log *slog.Logger, processor MessageProcessor, store database.Store) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log.With("component", "api"),
		processor: processor,
		store:     store,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /messages", s.handleListMessages)
	mux.HandleFunc("GET /messages/stats", s.handleMessageStats)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /readiness", s.handleReadiness)

	s.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run starts the listener and blocks until the context is cancelled or the
// listener fails, then shuts down gracefully within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("HTTP server listening", "addr", s.cfg.ListenAddr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("HTTP server shutdown failed", "error", err)
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	s.log.Info("HTTP server stopped gracefully.")
	return nil
}
