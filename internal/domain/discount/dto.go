package discount

import "time"

// Response is the API view of a discount
type Response struct {
	ID          string  `json:"id"`
	RewardID    string  `json:"reward_id"`
	Description string  `json:"description"`
	Kind        string  `json:"kind"`
	Value       string  `json:"value"`
	Status      string  `json:"status"`
	OrderID     *string `json:"order_id,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UsedAt      *string `json:"used_at,omitempty"`
}

// ToResponse converts entity to response
func (d *Discount) ToResponse() *Response {
	resp := &Response{
		ID:          d.ID.String(),
		RewardID:    d.RewardID,
		Description: d.Description,
		Kind:        string(d.Kind),
		Value:       d.Value.StringFixed(2),
		Status:      string(d.Status),
		CreatedAt:   d.CreatedAt.Format(time.RFC3339),
	}
	if d.OrderID.Valid {
		id := d.OrderID.UUID.String()
		resp.OrderID = &id
	}
	if d.UsedAt.Valid {
		at := d.UsedAt.Time.Format(time.RFC3339)
		resp.UsedAt = &at
	}
	return resp
}
