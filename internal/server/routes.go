package server

import (
	"github.com/go-chi/chi/v5"

	"github.com/nrguardian/nrguardian/internal/server/handlers"
)

func (s *Server) registerRoutes(h *handlers.Handlers) {
	s.router.Get("/health", h.Health)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/templates", h.ListTemplates)

		r.Route("/metrics", func(r chi.Router) {
			r.Get("/discover", h.DiscoverMetrics)
			r.Get("/search/{term}", h.SearchMetrics)
			r.Get("/{metricName}/metadata", h.MetricMetadata)
		})

		r.Route("/dashboards", func(r chi.Router) {
			r.Post("/generate", h.GenerateDashboard)
			r.Post("/preview", h.PreviewDashboard)
			r.Post("/deploy", h.DeployDashboard)
			r.Post("/generate-deploy", h.GenerateAndDeploy)
			r.Post("/validate", h.ValidateDashboard)
		})
	})
}
