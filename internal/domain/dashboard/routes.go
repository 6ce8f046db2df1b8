package dashboard

import "github.com/go-chi/chi/v5"

// Routes returns dashboard routes; mount behind Auth and RequireAdmin
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetStats)
	return r
}
