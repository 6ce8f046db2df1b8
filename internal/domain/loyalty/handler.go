package loyalty

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/qahwa/cafe-api/internal/domain/user"
	"github.com/qahwa/cafe-api/internal/middleware"
	"github.com/qahwa/cafe-api/internal/pkg/errorhandler"
	"github.com/qahwa/cafe-api/internal/pkg/response"
	"github.com/qahwa/cafe-api/internal/pkg/validator"
)

// UserLookup resolves account details for the legacy balance view
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// Handler handles loyalty HTTP requests
type Handler struct {
	service *Service
	users   UserLookup
}

// NewHandler creates loyalty handler
func NewHandler(service *Service, users UserLookup) *Handler {
	return &Handler{service: service, users: users}
}

// GetPoints handles GET /points/{userId}. Admins may read anyone; members only themselves.
func (h *Handler) GetPoints(w http.ResponseWriter, r *http.Request) {
	targetID, ok := h.authorizeTarget(w, r, true)
	if !ok {
		return
	}

	u, err := h.users.GetByID(r.Context(), targetID)
	if err != nil {
		errorhandler.Internal(r.Context(), w, err, "failed to load user")
		return
	}
	if u == nil {
		response.NotFound(w, "user not found")
		return
	}

	p, err := h.service.GetProfile(r.Context(), targetID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, PointsResponse{
		UserID:   u.ID.String(),
		Username: u.Name,
		Email:    u.Email,
		Points:   p.AvailablePoints,
	})
}

// AddPoints handles POST /points/{userId}/add (admin)
func (h *Handler) AddPoints(w http.ResponseWriter, r *http.Request) {
	targetID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		response.BadRequest(w, "invalid user id")
		return
	}

	var req AddPointsRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	p, replayed, err := h.service.Grant(r.Context(), targetID, req.Points, req.Reason, req.RequestID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, AddPointsResponse{
		Message:    fmt.Sprintf("Added %d points", req.Points),
		NewBalance: p.AvailablePoints,
		Replayed:   replayed,
	})
}

// RedeemPoints handles POST /points/{userId}/redeem. Only the member may spend their points.
func (h *Handler) RedeemPoints(w http.ResponseWriter, r *http.Request) {
	targetID, ok := h.authorizeTarget(w, r, false)
	if !ok {
		return
	}

	var req RedeemPointsRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}
	amount, err := decimal.NewFromString(req.DiscountAmount)
	if err != nil {
		response.ValidationError(w, map[string]string{"discount_amount": "Invalid amount"})
		return
	}

	result, err := h.service.RedeemPoints(r.Context(), targetID, req.PointsToRedeem, amount, req.RequestID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := RedeemPointsResponse{
		Message:         fmt.Sprintf("Redeemed %d points", result.Redemption.Points),
		DiscountAmount:  amount.StringFixed(2),
		RemainingPoints: result.Profile.AvailablePoints,
		Replayed:        result.Replayed,
	}
	if result.Discount != nil {
		resp.DiscountAmount = result.Discount.Value.StringFixed(2)
		resp.DiscountID = result.Discount.ID.String()
	}
	response.OK(w, resp)
}

// Me handles GET /loyalty/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetSummary(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, summary.ToResponse())
}

// History handles GET /loyalty/me/history?page=&limit=
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	page, limit := response.PageParams(r, 20, 100)

	entries, total, err := h.service.History(r.Context(), middleware.GetUserID(r.Context()), Pagination{
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]*EntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, entries[i].ToResponse())
	}
	response.WithMeta(w, out, response.NewMeta(total, page, limit))
}

// Rewards handles GET /rewards; every catalog entry is flagged with whether the caller can redeem it
func (h *Handler) Rewards(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetProfile(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	catalog := h.service.Catalog()
	out := make([]RewardResponse, 0)
	for _, reward := range catalog.All() {
		out = append(out, RewardResponse{Reward: reward, CanRedeem: catalog.CanRedeemReward(p.AvailablePoints, reward)})
	}
	response.OK(w, map[string]interface{}{
		"items":            out,
		"available_points": p.AvailablePoints,
	})
}

// AvailableRewards handles GET /rewards/available
func (h *Handler) AvailableRewards(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetProfile(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rewards := h.service.Catalog().GetAvailableRewards(p.AvailablePoints)
	out := make([]RewardResponse, 0, len(rewards))
	for _, reward := range rewards {
		out = append(out, RewardResponse{Reward: reward, CanRedeem: true})
	}
	response.OK(w, map[string]interface{}{
		"items":            out,
		"available_points": p.AvailablePoints,
	})
}

// RedeemReward handles POST /rewards/{rewardId}/redeem
func (h *Handler) RedeemReward(w http.ResponseWriter, r *http.Request) {
	var req RedeemRewardRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	result, err := h.service.Redeem(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "rewardId"), req.RequestID)
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

// SearchTransactions handles GET /admin/loyalty/transactions
func (h *Handler) SearchTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, limit := response.PageParams(r, 50, 200)
	f := SearchFilters{Limit: limit, Offset: (page - 1) * limit}

	if v := q.Get("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(w, "invalid user_id")
			return
		}
		f.UserID = &id
	}
	if v := q.Get("type"); v != "" {
		t := EntryType(v)
		if t != EntryEarned && t != EntryUsed && t != EntryExpired {
			response.BadRequest(w, "type must be earned, used or expired")
			return
		}
		f.Type = &t
	}
	if v := q.Get("source"); v != "" {
		s := EntrySource(v)
		if s != SourcePurchase && s != SourceBonus && s != SourceRedemption && s != SourceExpiry {
			response.BadRequest(w, "invalid source")
			return
		}
		f.Source = &s
	}
	var err error
	if f.DateFrom, err = parseDateParam(q.Get("from")); err != nil {
		response.BadRequest(w, "invalid from date")
		return
	}
	if f.DateTo, err = parseDateParam(q.Get("to")); err != nil {
		response.BadRequest(w, "invalid to date")
		return
	}

	entries, err := h.service.SearchEntries(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]*EntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, entries[i].ToResponse())
	}
	response.OK(w, map[string]interface{}{
		"items": out,
		"page":  page,
		"limit": limit,
	})
}

// RunExpiry handles POST /admin/loyalty/expire
func (h *Handler) RunExpiry(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.ExpireDue(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, summary)
}

// authorizeTarget parses {userId} and checks the caller may act on it. The
// same 403 is returned whether or not the target exists.
func (h *Handler) authorizeTarget(w http.ResponseWriter, r *http.Request, adminAllowed bool) (uuid.UUID, bool) {
	targetID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		response.BadRequest(w, "invalid user id")
		return uuid.Nil, false
	}

	callerID := middleware.GetUserID(r.Context())
	if callerID == targetID {
		return targetID, true
	}
	if adminAllowed && middleware.GetRole(r.Context()) == string(user.RoleAdmin) {
		return targetID, true
	}

	response.Forbidden(w, "You can only access your own points")
	return uuid.Nil, false
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *InsufficientPointsError
	switch {
	case errors.As(err, &insufficient):
		response.ErrorWithDetails(w, http.StatusBadRequest, "INSUFFICIENT_POINTS", "Insufficient points", map[string]int{
			"current_points":  insufficient.Current,
			"required_points": insufficient.Required,
		})
	case errors.Is(err, ErrInsufficientPoints):
		response.Error(w, http.StatusBadRequest, "INSUFFICIENT_POINTS", "Insufficient points")
	case errors.Is(err, ErrRewardUnavailable):
		response.Error(w, http.StatusBadRequest, "REWARD_UNAVAILABLE", "Reward is not available")
	case errors.Is(err, ErrRewardNotFound):
		response.NotFound(w, "reward not found")
	case errors.Is(err, ErrProfileNotFound):
		response.NotFound(w, "loyalty profile not found")
	case errors.Is(err, ErrRequestConflict):
		response.Conflict(w, "request_id was already used for a different operation")
	case errors.Is(err, ErrRequestIDRequired):
		response.ValidationError(w, map[string]string{"request_id": "This field is required"})
	case errors.Is(err, ErrInvalidPoints):
		response.ValidationError(w, map[string]string{"points": "Value must be greater than 0"})
	case errors.Is(err, ErrInvalidDiscountAmount):
		response.ValidationError(w, map[string]string{"discount_amount": "Amount must be positive and at most " + PointValue.String() + " SAR per point"})
	default:
		errorhandler.Internal(r.Context(), w, err, "loyalty request failed")
	}
}

func parseDateParam(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
