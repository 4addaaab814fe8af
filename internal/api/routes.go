package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Middleware is a standard chi-compatible middleware.
type Middleware func(next http.Handler) http.Handler

// RegisterDatasetRoutes registers the dataset routes. Reads require
// authentication; writes and imports additionally require the admin role.
func RegisterDatasetRoutes(r chi.Router, handler *DatasetHandler, authMiddleware, adminMiddleware Middleware) {
	r.Route("/datasets", func(r chi.Router) {
		r.Use(authMiddleware)

		// GET /api/v1/datasets - dataset catalog
		r.Get("/", handler.ListCatalog)

		r.Route("/incidents", func(r chi.Router) {
			r.Get("/", handler.ListIncidents)
			r.Get("/{id}", handler.GetIncident)

			r.Group(func(r chi.Router) {
				r.Use(adminMiddleware)
				r.Post("/", handler.CreateIncident)
				r.Post("/import", handler.ImportIncidents)
				r.Put("/{id}", handler.UpdateIncident)
				r.Delete("/{id}", handler.DeleteIncident)
			})
		})

		r.Route("/tickets", func(r chi.Router) {
			r.Get("/", handler.ListTickets)
			r.Get("/{id}", handler.GetTicket)

			r.Group(func(r chi.Router) {
				r.Use(adminMiddleware)
				r.Post("/", handler.CreateTicket)
				r.Post("/import", handler.ImportTickets)
				r.Put("/{id}", handler.UpdateTicket)
				r.Delete("/{id}", handler.DeleteTicket)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(adminMiddleware)
			// GET /api/v1/datasets/snapshots - archived CSV snapshots
			r.Get("/snapshots", handler.ListSnapshots)
			// DELETE /api/v1/datasets/{id} - drop a catalog entry
			r.Delete("/{id}", handler.DeleteCatalogEntry)
		})
	})
}
