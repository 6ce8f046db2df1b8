package product

import "time"

// CreateRequest for creating a menu item
type CreateRequest struct {
	SKU         string `json:"sku" validate:"required,min=3,max=40"`
	Name        string `json:"name" validate:"required,min=2,max=120"`
	NameAr      string `json:"name_ar" validate:"max=120"`
	Description string `json:"description" validate:"max=1000"`
	Category    string `json:"category" validate:"required,product_category"`
	Price       string `json:"price" validate:"required,money"`
	IsAvailable *bool  `json:"is_available"`
}

// UpdateRequest for updating a menu item; nil fields are left unchanged
type UpdateRequest struct {
	SKU         *string `json:"sku" validate:"omitempty,min=3,max=40"`
	Name        *string `json:"name" validate:"omitempty,min=2,max=120"`
	NameAr      *string `json:"name_ar" validate:"omitempty,max=120"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	Category    *string `json:"category" validate:"omitempty,product_category"`
	Price       *string `json:"price" validate:"omitempty,money"`
	IsAvailable *bool   `json:"is_available"`
}

// Response is the API view of a product
type Response struct {
	ID           string `json:"id"`
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	NameAr       string `json:"name_ar,omitempty"`
	Description  string `json:"description,omitempty"`
	Category     string `json:"category"`
	Price        string `json:"price"`
	ImageURL     string `json:"image_url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	IsAvailable  bool   `json:"is_available"`
	UpdatedAt    string `json:"updated_at"`
}

// ToResponse converts entity to response
func (p *Product) ToResponse() *Response {
	return &Response{
		ID:           p.ID.String(),
		SKU:          p.SKU,
		Name:         p.Name,
		NameAr:       p.NameAr,
		Description:  p.Description,
		Category:     string(p.Category),
		Price:        p.Price.StringFixed(2),
		ImageURL:     p.ImageURL.String,
		ThumbnailURL: p.ThumbnailURL.String,
		IsAvailable:  p.IsAvailable,
		UpdatedAt:    p.UpdatedAt.Format(time.RFC3339),
	}
}
