// Package api provides the REST+SSE adapter for starthub-serve: a thin
// HTTP surface over the core runtime's Execute entry point and Log
// Channel (spec.md §6). Grounded on the teacher's internal/api router
// (chi + cors + optional API-key middleware), generalized from
// project-centric routes to action-execution-centric ones.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/starthub-run/runtime/internal/config"
	"github.com/starthub-run/runtime/internal/logger"
	"github.com/starthub-run/runtime/pkg/history"
	"github.com/starthub-run/runtime/pkg/runtime"
)

// Server represents the API server.
type Server struct {
	cfg     *config.Config
	router  chi.Router
	runtime *runtime.Runtime
	history *history.Store // nil when history persistence is disabled
}

// NewServer creates a new API server over rt, optionally backed by hist
// for execution-history endpoints.
func NewServer(cfg *config.Config, rt *runtime.Runtime, hist *history.Store) *Server {
	s := &Server{
		cfg:     cfg,
		runtime: rt,
		history: hist,
	}

	s.setupRouter()
	return s
}

// setupRouter configures all routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	timeout := 60 * time.Second
	if s.cfg.API.RequestTimeout > 0 {
		timeout = time.Duration(s.cfg.API.RequestTimeout) * time.Second
	}
	r.Use(middleware.Timeout(timeout))

	if s.cfg.Security.CORSEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.API.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Optional API key authentication
	if s.cfg.API.APIKey != "" {
		r.Use(s.apiKeyAuth)
	}

	// Health and version endpoints (no auth)
	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)

	// Action execution
	r.Post("/execute", s.handleExecute)

	// Log Channel subscription, streamed as Server-Sent Events
	r.Get("/events", s.handleEvents)

	// Execution history (only registered when persistence is enabled)
	if s.history != nil {
		r.Get("/history", s.handleListHistory)
		r.Get("/history/{id}/logs", s.handleHistoryLogs)
	}

	s.router = r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// requestLogger logs each request through the arbor logger set up by
// logger.SetupLogger, replacing chi's stdlib middleware.Logger so HTTP
// access logs go through the same writer configuration (file/console,
// json/logfmt, rotation) as the rest of the service's operational logs.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.GetLogger().Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("duration", time.Since(start).String()).
			Msg("http request")
	})
}

// apiKeyAuth is middleware that validates API key.
func (s *Server) apiKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth for health and version
		if r.URL.Path == "/health" || r.URL.Path == "/version" {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey != s.cfg.API.APIKey {
			writeError(w, http.StatusUnauthorized, "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}
