package order

import (
	"time"

	"github.com/qahwa/cafe-api/internal/domain/loyalty"
)

// LineRequest is one line of an explicit order
type LineRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=20"`
}

// CreateRequest places an order. Without items the caller's cart is checked out.
type CreateRequest struct {
	RequestID  string        `json:"request_id" validate:"required,max=64"`
	Items      []LineRequest `json:"items" validate:"omitempty,max=50,dive"`
	DiscountID string        `json:"discount_id" validate:"omitempty,uuid"`
	BranchID   string        `json:"branch_id" validate:"omitempty,uuid"`
	CustomerID string        `json:"customer_id" validate:"omitempty,uuid"`
	Notes      string        `json:"notes" validate:"max=500"`
}

// UpdateStatusRequest moves an order along the kitchen flow
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=preparing ready completed"`
}

// ItemResponse is an order line
type ItemResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
	RewardID    string `json:"reward_id,omitempty"`
}

// Response is an order
type Response struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	CashierID      string         `json:"cashier_id,omitempty"`
	BranchID       string         `json:"branch_id,omitempty"`
	Status         Status         `json:"status"`
	Channel        Channel        `json:"channel"`
	Items          []ItemResponse `json:"items"`
	Subtotal       string         `json:"subtotal"`
	DiscountAmount string         `json:"discount_amount"`
	Total          string         `json:"total"`
	DiscountID     string         `json:"discount_id,omitempty"`
	PointsEarned   int            `json:"points_earned"`
	Notes          string         `json:"notes,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// CreateResponse is the checkout result
type CreateResponse struct {
	Order          Response     `json:"order"`
	PointsEarned   int          `json:"points_earned"`
	PointsRefunded int          `json:"points_refunded,omitempty"`
	NewBalance     int          `json:"new_balance"`
	Tier           loyalty.Tier `json:"tier"`
	Replayed       bool         `json:"replayed"`
}

// ToResponse converts an order for the API
func (o *Order) ToResponse() Response {
	resp := Response{
		ID:             o.ID.String(),
		UserID:         o.UserID.String(),
		Status:         o.Status,
		Channel:        o.Channel,
		Items:          make([]ItemResponse, 0, len(o.Items)),
		Subtotal:       o.Subtotal.StringFixed(2),
		DiscountAmount: o.DiscountAmount.StringFixed(2),
		Total:          o.Total.StringFixed(2),
		PointsEarned:   o.PointsEarned,
		Notes:          o.Notes,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	if o.CashierID.Valid {
		resp.CashierID = o.CashierID.UUID.String()
	}
	if o.BranchID.Valid {
		resp.BranchID = o.BranchID.UUID.String()
	}
	if o.DiscountID.Valid {
		resp.DiscountID = o.DiscountID.UUID.String()
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, ItemResponse{
			ProductID:   it.ProductID.String(),
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.StringFixed(2),
			LineTotal:   it.LineTotal.StringFixed(2),
			RewardID:    it.RewardID.String,
		})
	}
	return resp
}

// ToResponse converts a checkout result for the API
func (r *CreateResult) ToResponse() CreateResponse {
	resp := CreateResponse{
		Order:          r.Order.ToResponse(),
		PointsEarned:   r.PointsEarned,
		PointsRefunded: r.PointsRefunded,
		Replayed:       r.Replayed,
	}
	if r.Profile != nil {
		resp.NewBalance = r.Profile.AvailablePoints
		resp.Tier = r.Profile.Tier
	}
	return resp
}

// ToResponses converts a page of orders
func ToResponses(orders []Order) []Response {
	out := make([]Response, 0, len(orders))
	for i := range orders {
		out = append(out, orders[i].ToResponse())
	}
	return out
}
