package product

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/qahwa/cafe-api/internal/pkg/errorhandler"
	"github.com/qahwa/cafe-api/internal/pkg/imaging"
	"github.com/qahwa/cafe-api/internal/pkg/response"
	"github.com/qahwa/cafe-api/internal/pkg/validator"
)

// Handler handles menu HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates product handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List handles GET /products?category=&q=&page=&limit=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ListFilter{
		Search:        q.Get("q"),
		AvailableOnly: q.Get("all") != "true",
	}
	if c := q.Get("category"); c != "" {
		if err := validator.ValidateVar(c, "product_category"); err != nil {
			response.BadRequest(w, "invalid category")
			return
		}
		cat := Category(c)
		f.Category = &cat
	}
	page, limit := response.PageParams(r, 50, 100)
	f.Limit = limit
	f.Offset = (page - 1) * limit

	items, total, err := h.service.List(r.Context(), f)
	if err != nil {
		errorhandler.Internal(r.Context(), w, err, "failed to list products")
		return
	}

	out := make([]*Response, 0, len(items))
	for i := range items {
		out = append(out, items[i].ToResponse())
	}
	response.WithMeta(w, out, response.NewMeta(total, page, limit))
}

// Get handles GET /products/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid product id")
		return
	}

	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, p.ToResponse())
}

// Create handles POST /admin/products
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	p, err := h.service.Create(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Created(w, p.ToResponse())
}

// Update handles PUT /admin/products/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid product id")
		return
	}

	var req UpdateRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	p, err := h.service.Update(r.Context(), id, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, p.ToResponse())
}

// Delete handles DELETE /admin/products/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid product id")
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w)
}

// UploadImage handles POST /admin/products/{id}/image (multipart field "file")
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid product id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxFileSize+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxFileSize); err != nil {
		response.BadRequest(w, "File too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "No file provided")
		return
	}
	defer file.Close()

	p, err := h.service.UploadImage(r.Context(), id, header.Filename, file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, p.ToResponse())
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrProductNotFound):
		response.NotFound(w, "product not found")
	case errors.Is(err, ErrSKUTaken):
		response.Conflict(w, "SKU already exists")
	case errors.Is(err, ErrInvalidPrice):
		response.ValidationError(w, map[string]string{"price": "Invalid amount"})
	case errors.Is(err, ErrInvalidImage):
		response.BadRequest(w, "File type not allowed or image unreadable")
	case errors.Is(err, ErrStorageDisabled):
		response.Error(w, http.StatusServiceUnavailable, "STORAGE_DISABLED", "image storage is not configured")
	default:
		errorhandler.Internal(r.Context(), w, err, "product request failed")
	}
}
