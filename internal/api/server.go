// Package api provides the HTTP API server for msgscope.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wesm/msgscope/internal/config"
	"github.com/wesm/msgscope/internal/query"
)

// Server represents the HTTP API server.
type Server struct {
	cfg         *config.Config
	engine      query.Engine
	logger      *slog.Logger
	router      chi.Router
	server      *http.Server
	rateLimiter *RateLimiter
}

// NewServer creates a new API server over engine.
func NewServer(cfg *config.Config, engine query.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		engine: engine,
		logger: logger,
	}
	s.router = s.setupRouter()
	return s
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	// Disabled when no origins are configured.
	r.Use(CORSMiddleware(DefaultCORSConfig(s.cfg.Server.CORSOrigins)))

	if s.cfg.Server.RateLimitRPS > 0 {
		s.rateLimiter = NewRateLimiter(s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst)
		r.Use(RateLimitMiddleware(s.rateLimiter))
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/contacts", s.handleContacts)
		r.Get("/threads", s.handleThreads)
		r.Get("/attachments", s.handleAttachments)
		r.Get("/visibility", s.handleVisibility)
	})

	return r
}

// Start begins listening for HTTP requests. It refuses to start without a
// token secret.
func (s *Server) Start() error {
	if s.cfg.Server.JWTSecret == "" {
		return errors.New("server.jwt_secret is required to serve the API (or set MSGSCOPE_JWT_SECRET)")
	}

	addr := s.cfg.ServerAddr()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// loggerMiddleware logs HTTP requests.
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
