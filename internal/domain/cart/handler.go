package cart

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/qahwa/cafe-api/internal/domain/product"
	"github.com/qahwa/cafe-api/internal/middleware"
	"github.com/qahwa/cafe-api/internal/pkg/errorhandler"
	"github.com/qahwa/cafe-api/internal/pkg/response"
	"github.com/qahwa/cafe-api/internal/pkg/validator"
)

// Handler handles cart HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates cart handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Get handles GET /cart
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Get(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		errorhandler.Internal(r.Context(), w, err, "failed to load cart")
		return
	}
	response.OK(w, NewResponse(items))
}

// AddItem handles POST /cart/items
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	item, err := h.service.AddItem(r.Context(), middleware.GetUserID(r.Context()), uuid.MustParse(req.ProductID), req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Created(w, item.ToResponse())
}

// UpdateItem handles PATCH /cart/items/{id}
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid item id")
		return
	}

	var req UpdateItemRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	item, err := h.service.UpdateQuantity(r.Context(), middleware.GetUserID(r.Context()), id, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, item.ToResponse())
}

// RemoveItem handles DELETE /cart/items/{id}
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid item id")
		return
	}

	if err := h.service.Remove(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrItemNotFound):
		response.NotFound(w, "cart item not found")
	case errors.Is(err, ErrRewardLineLocked):
		response.Conflict(w, "reward items cannot be changed")
	case errors.Is(err, product.ErrProductNotFound):
		response.NotFound(w, "product not found")
	case errors.Is(err, product.ErrProductUnavailable):
		response.BadRequest(w, "product is not available")
	default:
		errorhandler.Internal(r.Context(), w, err, "cart request failed")
	}
}
