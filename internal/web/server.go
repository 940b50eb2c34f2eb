// Package web provides the HTTP server and handlers for the glucose
// measurement API.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/glucolog/glucolog/internal/config"
	"github.com/glucolog/glucolog/internal/core"
	mw "github.com/glucolog/glucolog/internal/web/middleware"
)

// LevelService is the part of core.Service the handlers use. Tests swap
// in a stub implementation.
type LevelService interface {
	IngestCSV(ctx context.Context, opts core.IngestOptions) (*core.IngestResult, error)
	CreateLevel(ctx context.Context, nl core.NewLevel) (*core.Level, error)
	ListLevels(ctx context.Context, q core.LevelQuery) ([]core.Level, error)
	GetLevel(ctx context.Context, id int64) (*core.Level, error)
	StreamLevels(ctx context.Context, userID string, fn func(core.Level) error) error
	RecentIngests(ctx context.Context, limit int) ([]core.IngestRun, error)
	Ping(ctx context.Context) error
}

// Server is the HTTP server for the glucose measurement API.
//
// It holds no request state of its own; everything lives in the
// database, so any number of replicas can serve the same traffic.
type Server struct {
	service LevelService
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new Server instance.
func NewServer(service LevelService, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

	// Security hardening
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))
	s.router.Use(mw.APIKeyAuth(&s.cfg.Security))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		// CSV ingestion
		r.Post("/load-data", s.handleLoadData)

		// Measurements
		r.Get("/levels", s.handleListLevels)
		r.Post("/levels", s.handleCreateLevel)
		r.Get("/levels/{id}", s.handleGetLevel)

		// CSV export
		r.Get("/export-data", s.handleExportData)

		// Ingest history
		r.Get("/ingests", s.handleListIngests)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// handleHealth reports whether the service can reach its database.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Prevent MIME type sniffing
			w.Header().Set("X-Content-Type-Options", "nosniff")

			// Prevent clickjacking
			w.Header().Set("X-Frame-Options", "DENY")

			// The API serves JSON and CSV only, so no resource loading
			// is ever legitimate
			if enableCSP {
				w.Header().Set("Content-Security-Policy", "default-src 'none'")
			}

			// Control referrer information
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			next.ServeHTTP(w, r)
		})
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	log.Printf("HTTP %d: %s", status, message)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q}`, message)
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("json encode error: %v", err)
	}
}
