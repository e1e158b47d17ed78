package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/checkpoint/internal/web/handlers"
	"github.com/kozaktomas/checkpoint/internal/web/middleware"
)

// requestTimeout bounds every route except gallery scans, whose length grows with the gallery.
const requestTimeout = 30 * time.Second

func (s *Server) setupRoutes(sessionManager *middleware.SessionManager) {
	authHandler := handlers.NewAuthHandler(s.deps.Staff, s.deps.Catalog, sessionManager, s.log)
	sectionsHandler := handlers.NewSectionsHandler(s.deps.Catalog, s.deps.Engine, s.deps.Ledger, s.log)
	subjectsHandler := handlers.NewSubjectsHandler(s.deps.Gallery, s.log)

	// Health check and metrics (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)
	if s.deps.Gatherer != nil {
		s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(requestTimeout))
			r.Post("/auth/login", authHandler.Login)
			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/auth/status", authHandler.Status)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(sessionManager))

			// No deadline: a scan lasts as long as the gallery takes to compare.
			r.Post("/sections/{section}/scan", sectionsHandler.Scan)
			r.Post("/sections/{section}/compare", sectionsHandler.Compare)

			r.Group(func(r chi.Router) {
				r.Use(chiMiddleware.Timeout(requestTimeout))
				r.Get("/sections", sectionsHandler.List)
				r.Get("/sections/{section}/visits", sectionsHandler.Visits)
				r.Get("/sections/{section}/stats", sectionsHandler.Stats)
				r.Get("/subjects/{id}/photo", subjectsHandler.Photo)
			})
		})
	})
}
