package branch

import "github.com/go-chi/chi/v5"

// Routes returns branch router
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/nearest", h.Nearest)
	return r
}
