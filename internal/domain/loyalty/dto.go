package loyalty

import (
	"time"

	"github.com/qahwa/cafe-api/internal/domain/cart"
	"github.com/qahwa/cafe-api/internal/domain/discount"
)

// AddPointsRequest for POST /points/{userId}/add
type AddPointsRequest struct {
	Points    int    `json:"points" validate:"required,gt=0,lte=100000"`
	Reason    string `json:"reason" validate:"max=200"`
	RequestID string `json:"request_id" validate:"omitempty,request_id"`
}

// RedeemPointsRequest for POST /points/{userId}/redeem
type RedeemPointsRequest struct {
	PointsToRedeem int    `json:"points_to_redeem" validate:"required,gt=0"`
	DiscountAmount string `json:"discount_amount" validate:"required,money"`
	RequestID      string `json:"request_id" validate:"required,request_id"`
}

// RedeemRewardRequest for POST /rewards/{rewardId}/redeem
type RedeemRewardRequest struct {
	RequestID string `json:"request_id" validate:"required,request_id"`
}

// PointsResponse is the legacy balance view
type PointsResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Points   int    `json:"points"`
}

// AddPointsResponse is the legacy grant result
type AddPointsResponse struct {
	Message    string `json:"message"`
	NewBalance int    `json:"new_balance"`
	Replayed   bool   `json:"replayed,omitempty"`
}

// RedeemPointsResponse is the legacy redemption result
type RedeemPointsResponse struct {
	Message         string `json:"message"`
	DiscountAmount  string `json:"discount_amount"`
	RemainingPoints int    `json:"remaining_points"`
	DiscountID      string `json:"discount_id,omitempty"`
	Replayed        bool   `json:"replayed,omitempty"`
}

// ExpiringSoon summarises points about to lapse
type ExpiringSoon struct {
	Points     int     `json:"points"`
	NextExpiry *string `json:"next_expiry,omitempty"`
}

// ProfileResponse is the member view of a profile
type ProfileResponse struct {
	UserID          string       `json:"user_id"`
	Tier            Tier         `json:"tier"`
	TotalPoints     int          `json:"total_points"`
	AvailablePoints int          `json:"available_points"`
	UsedPoints      int          `json:"used_points"`
	ExpiredPoints   int          `json:"expired_points"`
	TotalSpent      string       `json:"total_spent"`
	TotalOrders     int          `json:"total_orders"`
	JoinDate        string       `json:"join_date"`
	LastActivity    string       `json:"last_activity"`
	Benefits        TierBenefits `json:"benefits"`
	Progress        TierProgress `json:"progress"`
	ExpiringSoon    ExpiringSoon `json:"expiring_soon"`
}

// ToResponse converts a summary to response
func (s *Summary) ToResponse() *ProfileResponse {
	p := s.Profile
	resp := &ProfileResponse{
		UserID:          p.UserID.String(),
		Tier:            p.Tier,
		TotalPoints:     p.TotalPoints,
		AvailablePoints: p.AvailablePoints,
		UsedPoints:      p.UsedPoints,
		ExpiredPoints:   p.ExpiredPoints,
		TotalSpent:      p.TotalSpent.StringFixed(2),
		TotalOrders:     p.TotalOrders,
		JoinDate:        p.JoinDate.Format(time.RFC3339),
		LastActivity:    p.LastActivity.Format(time.RFC3339),
		Benefits:        s.Benefits,
		Progress:        s.Progress,
		ExpiringSoon:    ExpiringSoon{Points: s.ExpiringPoints},
	}
	if s.NextExpiry != nil {
		next := s.NextExpiry.Format(time.RFC3339)
		resp.ExpiringSoon.NextExpiry = &next
	}
	return resp
}

// EntryResponse is the API view of a ledger entry
type EntryResponse struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Points      int         `json:"points"`
	Type        EntryType   `json:"type"`
	Source      EntrySource `json:"source"`
	Description string      `json:"description"`
	OrderID     *string     `json:"order_id,omitempty"`
	CreatedAt   string      `json:"created_at"`
	ExpiresAt   *string     `json:"expires_at,omitempty"`
}

// ToResponse converts entity to response
func (e *LoyaltyPoint) ToResponse() *EntryResponse {
	resp := &EntryResponse{
		ID:          e.ID.String(),
		UserID:      e.UserID.String(),
		Points:      e.Points,
		Type:        e.Type,
		Source:      e.Source,
		Description: e.Description,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
	if e.OrderID.Valid {
		id := e.OrderID.UUID.String()
		resp.OrderID = &id
	}
	if e.ExpiresAt.Valid {
		at := e.ExpiresAt.Time.Format(time.RFC3339)
		resp.ExpiresAt = &at
	}
	return resp
}

// RewardResponse is a catalog entry with the caller's eligibility
type RewardResponse struct {
	Reward
	CanRedeem bool `json:"can_redeem"`
}

// RedemptionResponse is the result of redeeming a catalog reward
type RedemptionResponse struct {
	RedemptionID    string             `json:"redemption_id"`
	RewardID        string             `json:"reward_id"`
	PointsSpent     int                `json:"points_spent"`
	RemainingPoints int                `json:"remaining_points"`
	Discount        *discount.Response `json:"discount,omitempty"`
	CartItem        *cart.ItemResponse `json:"cart_item,omitempty"`
	CartItemID      string             `json:"cart_item_id,omitempty"`
	RedeemedAt      string             `json:"redeemed_at"`
	Replayed        bool               `json:"replayed"`
}

// ToResponse converts a redemption result to response
func (r *RedemptionResult) ToResponse() *RedemptionResponse {
	resp := &RedemptionResponse{
		RedemptionID:    r.Redemption.ID.String(),
		RewardID:        r.Redemption.RewardID,
		PointsSpent:     r.Redemption.Points,
		RemainingPoints: r.Profile.AvailablePoints,
		RedeemedAt:      r.Redemption.CreatedAt.Format(time.RFC3339),
		Replayed:        r.Replayed,
	}
	if r.Discount != nil {
		resp.Discount = r.Discount.ToResponse()
	}
	if r.CartItem != nil {
		resp.CartItem = r.CartItem.ToResponse()
	}
	if r.Redemption.CartItemID.Valid {
		resp.CartItemID = r.Redemption.CartItemID.UUID.String()
	}
	return resp
}
