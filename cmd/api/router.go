package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/qahwa/cafe-api/internal/domain/auth"
	"github.com/qahwa/cafe-api/internal/domain/branch"
	"github.com/qahwa/cafe-api/internal/domain/cart"
	"github.com/qahwa/cafe-api/internal/domain/dashboard"
	"github.com/qahwa/cafe-api/internal/domain/discount"
	"github.com/qahwa/cafe-api/internal/domain/loyalty"
	"github.com/qahwa/cafe-api/internal/domain/order"
	"github.com/qahwa/cafe-api/internal/domain/product"
	"github.com/qahwa/cafe-api/internal/middleware"
	"github.com/qahwa/cafe-api/internal/pkg/jwt"
	"github.com/qahwa/cafe-api/internal/pkg/realtime"
	pkgresponse "github.com/qahwa/cafe-api/internal/pkg/response"
)

type routerConfig struct {
	jwt            *jwt.Service
	healthChecks   func(ctx context.Context) map[string]error
	allowedOrigins []string
	uploadsDir     string // served under /uploads when images are stored locally
	redeemLimit    func(http.Handler) http.Handler
	orderLimit     func(http.Handler) http.Handler
}

type handlers struct {
	auth      *auth.Handler
	loyalty   *loyalty.Handler
	discount  *discount.Handler
	cart      *cart.Handler
	order     *order.Handler
	product   *product.Handler
	branch    *branch.Handler
	dashboard *dashboard.Handler
	realtime  *realtime.Handler
}

func newRouter(cfg routerConfig, h handlers) chi.Router {
	authMiddleware := middleware.Auth(cfg.jwt)

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.allowedOrigins))

	r.With(authMiddleware).Get("/ws", h.realtime.ServeWS)

	r.Get("/health", healthHandler(cfg.healthChecks))

	if cfg.uploadsDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.uploadsDir))))
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chimw.Compress(5))

			r.Mount("/auth", h.auth.Routes(authMiddleware))
			r.Mount("/loyalty", h.loyalty.Routes(authMiddleware))
			r.Mount("/discounts", h.discount.Routes(authMiddleware))
			r.Mount("/cart", h.cart.Routes(authMiddleware))
			r.Mount("/products", h.product.Routes())
			r.Mount("/branches", h.branch.Routes())
		})

		r.Mount("/points", h.loyalty.PointsRoutes(authMiddleware, cfg.redeemLimit))
		r.Mount("/rewards", h.loyalty.RewardRoutes(authMiddleware, cfg.redeemLimit))
		r.Mount("/orders", h.order.Routes(authMiddleware, cfg.orderLimit))

		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireStaff())
				r.Mount("/orders", h.order.AdminRoutes())
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin())
				r.Mount("/loyalty", h.loyalty.AdminRoutes())
				r.Mount("/products", h.product.AdminRoutes())
				r.Mount("/dashboard", h.dashboard.Routes())
			})
		})
	})

	return r
}

// healthHandler reports 503 when any dependency check fails
func healthHandler(checks func(ctx context.Context) map[string]error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok", "version": "1.0.0"}
		if checks == nil {
			pkgresponse.OK(w, status)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		healthy := true
		for name, err := range checks(ctx) {
			if err != nil {
				healthy = false
				status[name] = "down"
				log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
				continue
			}
			status[name] = "up"
		}

		if !healthy {
			status["status"] = "degraded"
			pkgresponse.JSON(w, http.StatusServiceUnavailable, status)
			return
		}
		pkgresponse.OK(w, status)
	}
}
