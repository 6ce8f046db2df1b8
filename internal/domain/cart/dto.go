package cart

import "time"

// AddItemRequest for POST /cart/items
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gte=1,lte=20"`
}

// UpdateItemRequest for PATCH /cart/items/{id}
type UpdateItemRequest struct {
	Quantity int `json:"quantity" validate:"required,gte=1,lte=20"`
}

// ItemResponse is the API view of a cart line
type ItemResponse struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
	RewardID    string `json:"reward_id,omitempty"`
	AddedAt     string `json:"added_at"`
}

// Response is the API view of a cart
type Response struct {
	Items     []*ItemResponse `json:"items"`
	ItemCount int             `json:"item_count"`
	Subtotal  string          `json:"subtotal"`
}

// ToResponse converts entity to response
func (i *Item) ToResponse() *ItemResponse {
	return &ItemResponse{
		ID:          i.ID.String(),
		ProductID:   i.ProductID.String(),
		ProductName: i.ProductName,
		Quantity:    i.Quantity,
		UnitPrice:   i.UnitPrice.StringFixed(2),
		LineTotal:   i.LineTotal().StringFixed(2),
		RewardID:    i.RewardID.String,
		AddedAt:     i.CreatedAt.Format(time.RFC3339),
	}
}

// NewResponse builds the cart view with its subtotal
func NewResponse(items []Item) *Response {
	resp := &Response{
		Items:    make([]*ItemResponse, 0, len(items)),
		Subtotal: Subtotal(items).StringFixed(2),
	}
	for i := range items {
		resp.Items = append(resp.Items, items[i].ToResponse())
		resp.ItemCount += items[i].Quantity
	}
	return resp
}
