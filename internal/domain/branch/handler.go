package branch

import (
	"net/http"
	"strconv"

	"github.com/qahwa/cafe-api/internal/pkg/errorhandler"
	"github.com/qahwa/cafe-api/internal/pkg/response"
	"github.com/qahwa/cafe-api/internal/pkg/validator"
)

// Handler serves branch lookups
type Handler struct {
	repo Repository
}

// NewHandler creates branch handler
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /branches?city=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.ListActive(r.Context(), r.URL.Query().Get("city"))
	if err != nil {
		errorhandler.Internal(r.Context(), w, err, "failed to list branches")
		return
	}
	response.OK(w, items)
}

// Nearest handles GET /branches/nearest?lat=&lng=&limit=
func (h *Handler) Nearest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)

	errs := map[string]string{}
	if errLat != nil || validator.ValidateVar(lat, "latitude") != nil {
		errs["lat"] = "Invalid latitude"
	}
	if errLng != nil || validator.ValidateVar(lng, "longitude") != nil {
		errs["lng"] = "Invalid longitude"
	}
	if len(errs) > 0 {
		response.ValidationError(w, errs)
		return
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > 20 {
		limit = 5
	}

	items, err := h.repo.ListActive(r.Context(), "")
	if err != nil {
		errorhandler.Internal(r.Context(), w, err, "failed to list branches")
		return
	}
	response.OK(w, Nearest(items, lat, lng, limit))
}
