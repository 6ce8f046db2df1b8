package cart

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns cart router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Get("/", h.Get)
	r.Post("/items", h.AddItem)
	r.Patch("/items/{id}", h.UpdateItem)
	r.Delete("/items/{id}", h.RemoveItem)

	return r
}
