package server

import (
	"net/http"

	"github.com/cloo-solutions/knowbase/internal/api"
	"github.com/cloo-solutions/knowbase/internal/api/handlers"
	"github.com/cloo-solutions/knowbase/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	AuthValidator middleware.AuthValidator
	IngestHandler *handlers.IngestHandler
	ItemsHandler  *handlers.ItemsHandler
	AskHandler    *handlers.AskHandler
	TenantHandler *handlers.TenantHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// file uploads go through multipart spooling, so the body cap covers
	// the largest accepted document
	const maxBodyBytes int64 = 48 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		r.Post("/ingest", cfg.IngestHandler.IngestText)
		r.Post("/ingest/file", cfg.IngestHandler.IngestFile)

		r.Route("/ingestions", func(r chi.Router) {
			r.Get("/", cfg.IngestHandler.List)
			r.Get("/{id}", cfg.IngestHandler.Get)
			r.Post("/{id}/approve", cfg.IngestHandler.Approve)
			r.Post("/{id}/reject", cfg.IngestHandler.Reject)
		})

		r.Route("/items", func(r chi.Router) {
			r.Get("/", cfg.ItemsHandler.List)
			r.Get("/{id}", cfg.ItemsHandler.Get)
			r.Patch("/{id}", cfg.ItemsHandler.Edit)
			r.Get("/{id}/versions", cfg.ItemsHandler.ListVersions)
			r.Get("/{id}/versions/{version}", cfg.ItemsHandler.GetVersion)
			r.Post("/{id}/approve", cfg.ItemsHandler.Approve)
			r.Post("/{id}/reject", cfg.ItemsHandler.Reject)
		})

		r.Post("/ask", cfg.AskHandler.Ask)

		r.Route("/tenants", func(r chi.Router) {
			r.Post("/", cfg.TenantHandler.Register)
			r.Get("/", cfg.TenantHandler.List)
			r.Get("/{code}", cfg.TenantHandler.Get)
			r.Patch("/{code}", cfg.TenantHandler.Rename)
			r.Delete("/{code}", cfg.TenantHandler.Delete)
		})
	})

	return r
}
