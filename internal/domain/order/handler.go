package order

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/qahwa/cafe-api/internal/domain/discount"
	"github.com/qahwa/cafe-api/internal/domain/loyalty"
	"github.com/qahwa/cafe-api/internal/middleware"
	"github.com/qahwa/cafe-api/internal/pkg/errorhandler"
	"github.com/qahwa/cafe-api/internal/pkg/response"
	"github.com/qahwa/cafe-api/internal/pkg/validator"
)

// Handler handles order HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates order handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create handles POST /orders
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	callerID := middleware.GetUserID(r.Context())
	in := CreateInput{
		UserID:    callerID,
		RequestID: req.RequestID,
		Notes:     req.Notes,
	}
	if req.CustomerID != "" {
		if !middleware.IsStaff(r.Context()) {
			response.Forbidden(w, "Only staff can place orders for a customer")
			return
		}
		in.UserID = uuid.MustParse(req.CustomerID)
		in.CashierID = &callerID
	}
	if req.BranchID != "" {
		id := uuid.MustParse(req.BranchID)
		in.BranchID = &id
	}
	if req.DiscountID != "" {
		id := uuid.MustParse(req.DiscountID)
		in.DiscountID = &id
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, LineInput{ProductID: uuid.MustParse(it.ProductID), Quantity: it.Quantity})
	}

	result, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if result.Replayed {
		response.OK(w, result.ToResponse())
		return
	}
	response.Created(w, result.ToResponse())
}

// List handles GET /orders for the caller
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	page, limit := response.PageParams(r, 20, 100)

	orders, total, err := h.service.List(r.Context(), ListFilter{
		UserID: &userID,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		errorhandler.Internal(r.Context(), w, err, "failed to list orders")
		return
	}
	response.WithMeta(w, ToResponses(orders), response.NewMeta(total, page, limit))
}

// Get handles GET /orders/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid order id")
		return
	}

	o, err := h.service.Get(r.Context(), id, middleware.GetUserID(r.Context()), middleware.IsStaff(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, o.ToResponse())
}

// AdminList handles GET /admin/orders?status=&branch_id=&user_id=
func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, limit := response.PageParams(r, 20, 100)
	f := ListFilter{Limit: limit, Offset: (page - 1) * limit}

	if v := q.Get("status"); v != "" {
		status := Status(v)
		if !status.Valid() {
			response.ValidationError(w, map[string]string{"status": "Unknown order status"})
			return
		}
		f.Status = &status
	}
	if v := q.Get("branch_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(w, "invalid branch id")
			return
		}
		f.BranchID = &id
	}
	if v := q.Get("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(w, "invalid user id")
			return
		}
		f.UserID = &id
	}

	orders, total, err := h.service.List(r.Context(), f)
	if err != nil {
		errorhandler.Internal(r.Context(), w, err, "failed to list orders")
		return
	}
	response.WithMeta(w, ToResponses(orders), response.NewMeta(total, page, limit))
}

// UpdateStatus handles PATCH /admin/orders/{id}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid order id")
		return
	}

	var req UpdateStatusRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	o, err := h.service.UpdateStatus(r.Context(), id, Status(req.Status))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, o.ToResponse())
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrOrderNotFound):
		response.NotFound(w, "Order not found")
	case errors.Is(err, ErrProductNotFound):
		response.NotFound(w, "Product not found")
	case errors.Is(err, discount.ErrDiscountNotFound):
		response.NotFound(w, "Discount not found")
	case errors.Is(err, discount.ErrDiscountUsed):
		response.Conflict(w, "Discount has already been used")
	case errors.Is(err, ErrInvalidTransition):
		response.Conflict(w, "Order cannot move to that status")
	case errors.Is(err, ErrProductUnavailable):
		response.Error(w, http.StatusBadRequest, "PRODUCT_UNAVAILABLE", "A product in this order is not available")
	case errors.Is(err, ErrEmptyOrder):
		response.BadRequest(w, "Order has no items")
	case errors.Is(err, loyalty.ErrProfileNotFound):
		response.BadRequest(w, "Customer has no active loyalty account")
	case errors.Is(err, ErrPOSItemsRequired):
		response.ValidationError(w, map[string]string{"items": "Point of sale orders need explicit items"})
	case errors.Is(err, ErrRequestIDRequired):
		response.ValidationError(w, map[string]string{"request_id": "This field is required"})
	default:
		errorhandler.Internal(r.Context(), w, err, "order request failed")
	}
}
