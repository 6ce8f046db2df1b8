package discount

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns discount router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Get("/", h.List)
	r.Get("/{id}", h.Get)

	return r
}
