package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/invoice-ledger/internal/api/handlers"
	"github.com/eshaffer321/invoice-ledger/internal/api/middleware"
	"github.com/eshaffer321/invoice-ledger/internal/application/pipeline"
	"github.com/eshaffer321/invoice-ledger/internal/domain/matcher"
	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/logging"
	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/storage"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string

	// MaxDocumentBytes limits invoice uploads; 0 uses the normalizer default.
	MaxDocumentBytes int64
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8085,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
	}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	repo       storage.Repository
	processor  *pipeline.Processor
}

// NewServer creates a new API server.
// If processor is nil, only the read endpoints are available.
func NewServer(cfg Config, repo storage.Repository, processor *pipeline.Processor, logger *slog.Logger) *Server {
	s := &Server{
		config:    cfg,
		router:    chi.NewRouter(),
		logger:    logging.OrDefault(logger),
		repo:      repo,
		processor: processor,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestIDMiddleware)

	// CORS
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = s.config.AllowedOrigins
	s.router.Use(middleware.CORS(corsConfig))

	// Request logging
	s.router.Use(middleware.Logging(s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	var index func() *matcher.Snapshot
	if s.processor != nil {
		index = s.processor.IndexSnapshot
	}
	healthHandler := handlers.NewHealthHandler(index)
	s.router.Get("/health", healthHandler.ServeHTTP)

	s.router.Route("/api", func(r chi.Router) {
		// Ledger reads
		ledgerHandler := handlers.NewLedgerHandler(s.repo, s.logger)
		r.Get("/prices/{code}", ledgerHandler.Prices)
		r.Get("/submissions", ledgerHandler.Submissions)
		r.Get("/submissions/{fingerprint}", ledgerHandler.Submission)

		// Processing runs
		runsHandler := handlers.NewRunsHandler(s.repo, s.logger)
		r.Get("/runs", runsHandler.List)
		r.Get("/runs/{id}", runsHandler.Get)

		linksHandler := handlers.NewLinksHandler(s.repo, s.processor, s.logger)
		r.Get("/links", linksHandler.List)

		if s.processor != nil {
			invoicesHandler := handlers.NewInvoicesHandler(s.repo, s.processor, s.config.MaxDocumentBytes, s.logger)
			r.Post("/invoices", invoicesHandler.Submit)
			r.Post("/links", linksHandler.Confirm)
		}
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
