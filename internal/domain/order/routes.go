package order

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the /orders router
func (h *Handler) Routes(authMiddleware, orderLimit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.With(orderLimit).Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)

	return r
}

// AdminRoutes returns /admin/orders routes; mount behind Auth and RequireStaff
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.AdminList)
	r.Patch("/{id}/status", h.UpdateStatus)

	return r
}
