package product

import (
	"github.com/go-chi/chi/v5"
)

// Routes returns the public menu router
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	return r
}

// AdminRoutes returns menu management routes; mount behind Auth and RequireAdmin
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/image", h.UploadImage)
	return r
}
