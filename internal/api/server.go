// Package api exposes experiment results, sync state and account health
// over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/outreach/internal/abtest"
	"github.com/foxzi/outreach/internal/analytics"
	"github.com/foxzi/outreach/internal/campaign"
	"github.com/foxzi/outreach/internal/config"
	"github.com/foxzi/outreach/internal/metrics"
	"github.com/foxzi/outreach/internal/syncer"
)

// Server is the HTTP reporting server
type Server struct {
	router       *chi.Mux
	httpServer   *http.Server
	store        *abtest.Store
	analyzer     *analytics.Analyzer
	coordinator  *syncer.Coordinator
	orchestrator *campaign.Orchestrator
	config       *config.APIConfig
	logger       *slog.Logger
	startTime    time.Time
}

// NewServer creates a new reporting server. The coordinator and
// orchestrator are optional; endpoints needing them answer 503 when absent.
func NewServer(store *abtest.Store, coordinator *syncer.Coordinator, orchestrator *campaign.Orchestrator, cfg *config.APIConfig, logger *slog.Logger) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		store:        store,
		analyzer:     analytics.NewAnalyzer(store),
		coordinator:  coordinator,
		orchestrator: orchestrator,
		config:       cfg,
		logger:       logger,
		startTime:    time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(metrics.HTTPMiddleware)
	s.router.Use(middleware.Recoverer)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/tests", s.handleListTests)
		r.Get("/tests/{id}", s.handleGetTest)
		r.Get("/tests/{id}/report", s.handleReport)
		r.Get("/tests/{id}/significance", s.handleSignificance)
		r.Post("/tests/{id}/complete", s.handleCompleteTest)
		r.Post("/tests/{id}/pause", s.handlePauseTest)
		r.Post("/tests/{id}/resume", s.handleResumeTest)

		r.Get("/sync/{campaignID}", s.handleSyncStatus)
		r.Post("/sync/{campaignID}/reset", s.handleSyncReset)

		r.Get("/accounts/health", s.handleAccountHealth)
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
