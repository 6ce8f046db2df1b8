package loyalty

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/qahwa/cafe-api/internal/middleware"
)

// PointsRoutes returns the legacy /points router
func (h *Handler) PointsRoutes(authMiddleware, redeemLimit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Get("/{userId}", h.GetPoints)
	r.With(middleware.RequireAdmin()).Post("/{userId}/add", h.AddPoints)
	r.With(redeemLimit).Post("/{userId}/redeem", h.RedeemPoints)

	return r
}

// Routes returns the member /loyalty router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Get("/me", h.Me)
	r.Get("/me/history", h.History)

	return r
}

// RewardRoutes returns the /rewards router
func (h *Handler) RewardRoutes(authMiddleware, redeemLimit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Get("/", h.Rewards)
	r.Get("/available", h.AvailableRewards)
	r.With(redeemLimit).Post("/{rewardId}/redeem", h.RedeemReward)

	return r
}

// AdminRoutes returns /admin/loyalty routes; mount behind Auth and RequireAdmin
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/transactions", h.SearchTransactions)
	r.Post("/expire", h.RunExpiry)

	return r
}
