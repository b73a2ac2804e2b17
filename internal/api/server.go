package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/rules"
	"github.com/kestrelhq/kestrel/internal/worker"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, runner *worker.Worker, alertEngine *rules.Engine, upload domain.UploadConfig, version string) *Server {
	handler := NewHandler(repo, cache, bus, runner, alertEngine, upload, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Analysis pipeline
	router.Post("/upload", handler.Upload)
	router.Post("/analyze", handler.Analyze)
	router.Get("/results/{id}", handler.GetResults)
	router.Get("/visualization/{id}", handler.GetVisualization)
	router.Get("/download-json/{id}", handler.DownloadJSON)

	// Analysis records
	router.Get("/analyses", handler.ListAnalyses)
	router.Get("/analyses/{id}", handler.GetAnalysis)
	router.Get("/analyses/{id}/alerts", handler.ListAnalysisAlerts)

	// Alert rule management
	router.Get("/alert-rules", handler.ListAlertRules)
	router.Get("/alert-rules/{id}", handler.GetAlertRule)
	router.Post("/alert-rules", handler.CreateAlertRule)
	router.Delete("/alert-rules/{id}", handler.DeleteAlertRule)
	router.Post("/alert-rules/reload", handler.ReloadAlertRules)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  120 * time.Second,
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

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
