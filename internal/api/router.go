// Package api is the HTTP surface: the producer endpoint, report retrieval
// and knowledge base utilities.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/ayush/medical-report-worker/internal/middleware"
)

// RouterConfig carries the cross-cutting pieces of the router.
type RouterConfig struct {
	Logger      zerolog.Logger
	CORSOrigins []string
	// Healthy reports whether the server's dependencies are reachable.
	// Nil means always healthy.
	Healthy func() bool
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

func NewRouter(h *Handler, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", HealthHandler(cfg.Healthy))
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/reports", h.Enqueue)
		r.Get("/reports/{id}", h.GetReport)
		r.Get("/reports/{id}/markdown", h.GetMarkdown)
		r.Get("/reports/{id}/artifacts/{format}", h.DownloadArtifact)
		r.Get("/users/{user_id}/reports", h.ListUserReports)
		r.Get("/jobs/{request_id}", h.GetJob)
		r.Get("/knowledge-base/categories", h.ListCategories)
		r.Post("/knowledge-base/import", h.ImportKnowledgeBase)
	})

	return r
}

// HealthHandler answers {"status":"healthy"}, or 503 when healthy reports
// false.
func HealthHandler(healthy func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if healthy != nil && !healthy() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}
