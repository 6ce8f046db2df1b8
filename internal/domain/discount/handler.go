package discount

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/qahwa/cafe-api/internal/middleware"
	"github.com/qahwa/cafe-api/internal/pkg/errorhandler"
	"github.com/qahwa/cafe-api/internal/pkg/response"
)

// Handler serves the caller's discounts
type Handler struct {
	repo Repository
}

// NewHandler creates discount handler
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /discounts?status=available|used
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var status *Status
	switch s := Status(r.URL.Query().Get("status")); s {
	case "":
	case StatusAvailable, StatusUsed:
		status = &s
	default:
		response.BadRequest(w, "status must be 'available' or 'used'")
		return
	}

	items, err := h.repo.ListByUser(r.Context(), userID, status)
	if err != nil {
		errorhandler.Internal(r.Context(), w, err, "failed to list discounts")
		return
	}

	out := make([]*Response, 0, len(items))
	for i := range items {
		out = append(out, items[i].ToResponse())
	}
	response.OK(w, map[string]interface{}{
		"items": out,
		"total": len(out),
	})
}

// Get handles GET /discounts/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid discount id")
		return
	}

	d, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		errorhandler.Internal(r.Context(), w, err, "failed to get discount")
		return
	}
	if d == nil || (d.UserID != middleware.GetUserID(r.Context()) && !middleware.IsStaff(r.Context())) {
		response.NotFound(w, "discount not found")
		return
	}

	response.OK(w, d.ToResponse())
}
