// Package server provides the HTTP server and routing for SwingScan.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/swingscan/swingscan/internal/cache"
	"github.com/swingscan/swingscan/internal/refresh"
	"github.com/swingscan/swingscan/internal/scheduler"
)

// Config holds server configuration.
type Config struct {
	Log         zerolog.Logger
	Port        int
	DevMode     bool
	Coordinator *refresh.Coordinator
	Store       *cache.Store
	History     *refresh.History
}

// Server represents the HTTP server.
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	coordinator    *refresh.Coordinator
	store          *cache.Store
	history        *refresh.History
	systemHandlers *SystemHandlers
	startedAt      time.Time
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		coordinator: cfg.Coordinator,
		store:       cfg.Store,
		history:     cfg.History,
		startedAt:   time.Now(),
	}
	s.systemHandlers = NewSystemHandlers(cfg.Log, cfg.Store, s.startedAt)

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// SetJobs registers job instances for manual triggering via API.
func (s *Server) SetJobs(jobs ...scheduler.Job) {
	s.systemHandlers.SetJobs(jobs...)
}

// setupMiddleware configures middleware.
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/plans/{symbol}", s.handleGetPlan)
		r.Post("/refresh/{symbol}", s.handleRefreshPlan)
		r.Get("/screener", s.handleScreener)
		r.Get("/runs", s.handleRuns)

		r.Route("/system", func(r chi.Router) {
			r.Get("/health", s.systemHandlers.HandleSystemHealth)
			r.Post("/jobs/{name}", s.systemHandlers.HandleTriggerJob)
		})
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
