// Package web provides the HTTP server for the match service.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/skillswap/skillmatch/internal/embed"
	"github.com/skillswap/skillmatch/internal/match"
	"github.com/skillswap/skillmatch/internal/snapshot"
)

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Host      string
	Port      int
	Matcher   *match.Matcher
	Snapshots *snapshot.Holder
	Provider  embed.Provider
	Logger    *slog.Logger
}

// Server is the HTTP server for the match API.
type Server struct {
	config  ServerConfig
	router  *chi.Mux
	handler *Handler
	srv     *http.Server
}

// NewServer creates a new server.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		config: cfg,
		router: chi.NewRouter(),
	}

	s.handler = NewHandler(cfg.Matcher, cfg.Snapshots, cfg.Provider, cfg.Logger)
	s.setupMiddleware()
	s.setupRoutes()

	s.srv = &http.Server{
		Addr:              cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handler.Health)
	s.router.Get("/status", s.handler.Status)
	s.router.Post("/match", s.handler.Match)
}

// requestLogger logs one line per request via the structured logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.config.Logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// Router returns the chi router for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ListenAndServe starts the HTTP server and blocks until it stops.
func (s *Server) ListenAndServe() error {
	s.config.Logger.Info("starting match API", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
