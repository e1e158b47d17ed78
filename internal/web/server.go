package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kozaktomas/checkpoint/internal/config"
	"github.com/kozaktomas/checkpoint/internal/database"
	"github.com/kozaktomas/checkpoint/internal/ledger"
	"github.com/kozaktomas/checkpoint/internal/logger"
	"github.com/kozaktomas/checkpoint/internal/matching"
	"github.com/kozaktomas/checkpoint/internal/section"
	"github.com/kozaktomas/checkpoint/internal/web/middleware"
)

// Dependencies are the components the HTTP layer serves.
type Dependencies struct {
	Catalog  *section.Catalog
	Engine   *matching.Engine
	Ledger   *ledger.Ledger
	Gallery  database.GalleryReader
	Staff    database.StaffReader
	Sessions middleware.SessionRepository // nil keeps sessions in memory only
	Gatherer prometheus.Gatherer          // nil disables /metrics
	Logger   *logger.Logger
}

// Server represents the web server
type Server struct {
	deps           Dependencies
	router         *chi.Mux
	httpServer     *http.Server
	sessionManager *middleware.SessionManager
	log            *logger.Logger
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	r := chi.NewRouter()

	sessionManager := middleware.NewSessionManager(cfg.Web.SessionSecret, deps.Sessions)
	sessionManager.SetLogger(deps.Logger.With("component", "sessions"))

	s := &Server{
		deps:           deps,
		router:         r,
		sessionManager: sessionManager,
		log:            deps.Logger,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger.With("component", "http")))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Web))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes(sessionManager)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // lifted per request by the scan and compare handlers
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")
	s.sessionManager.Stop()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}

// SessionManager returns the server's session manager.
func (s *Server) SessionManager() *middleware.SessionManager {
	return s.sessionManager
}
