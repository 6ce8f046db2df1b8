package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/qahwa/cafe-api/internal/config"
	"github.com/qahwa/cafe-api/internal/domain/auth"
	"github.com/qahwa/cafe-api/internal/domain/branch"
	"github.com/qahwa/cafe-api/internal/domain/cart"
	"github.com/qahwa/cafe-api/internal/domain/dashboard"
	"github.com/qahwa/cafe-api/internal/domain/discount"
	"github.com/qahwa/cafe-api/internal/domain/loyalty"
	"github.com/qahwa/cafe-api/internal/domain/order"
	"github.com/qahwa/cafe-api/internal/domain/product"
	"github.com/qahwa/cafe-api/internal/domain/user"
	"github.com/qahwa/cafe-api/internal/middleware"
	"github.com/qahwa/cafe-api/internal/pkg/database"
	"github.com/qahwa/cafe-api/internal/pkg/imaging"
	"github.com/qahwa/cafe-api/internal/pkg/jwt"
	"github.com/qahwa/cafe-api/internal/pkg/logger"
	"github.com/qahwa/cafe-api/internal/pkg/realtime"
	"github.com/qahwa/cafe-api/internal/pkg/storage"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
	})

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting Qahwa API")

	db, err := database.NewPostgres(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: time.Minute,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)

	// ---------- Storage ----------
	var (
		imageStore storage.Storage
		uploadsDir string
	)
	if cfg.UseS3() {
		s3Store, err := storage.NewS3Storage(context.Background(), storage.Config{
			S3Endpoint:  cfg.S3Endpoint,
			S3Region:    cfg.S3Region,
			S3AccessKey: cfg.S3AccessKeyID,
			S3SecretKey: cfg.S3AccessKeySecret,
			S3Bucket:    cfg.S3BucketName,
			S3PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create S3 storage client")
		}
		imageStore = s3Store
		log.Info().Str("bucket", cfg.S3BucketName).Msg("Product images stored in S3")
	} else {
		localStore, err := storage.NewLocalStorage(cfg.LocalStoragePath, cfg.LocalStorageURL)
		if err != nil {
			log.Warn().Err(err).Msg("Local storage unavailable, image upload disabled")
		} else {
			imageStore = localStore
			uploadsDir = localStore.Root()
		}
	}
	imageProcessor := imaging.NewProcessor(imaging.DefaultConfig())

	// ---------- Repositories ----------
	userRepo := user.NewRepository(db)
	loyaltyRepo := loyalty.NewRepository(db)
	discountRepo := discount.NewRepository(db)
	cartRepo := cart.NewRepository(db)
	productRepo := product.NewRepository(db)
	orderRepo := order.NewRepository(db)
	branchRepo := branch.NewRepository(db)
	dashboardRepo := dashboard.NewRepository(db)

	catalog, err := loyalty.LoadCatalogFile(cfg.LoyaltyCatalogPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.LoyaltyCatalogPath).Msg("Failed to load rewards catalog")
	}
	log.Info().Int("rewards", len(catalog.All())).Msg("Rewards catalog loaded")

	// ---------- WebSocket hub ----------
	hub := realtime.NewHub(redis)
	go hub.Run()

	// ---------- Services ----------
	loyaltyService := loyalty.NewService(loyaltyRepo, catalog, discountRepo, cartRepo, loyalty.Options{
		BaseRate:        cfg.LoyaltyBaseRate,
		ExpiringWindow:  cfg.LoyaltyExpiringWindow,
		ExpiryBatchSize: cfg.LoyaltyExpiryBatchSize,
	})
	loyaltyService.SetPublisher(hub)

	authService := auth.NewService(userRepo, func(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
		return database.InTx(ctx, db, fn)
	}, loyaltyService, jwtService, auth.NewRedisRefreshStore(redis))

	cartService := cart.NewService(cartRepo, productRepo)
	productService := product.NewService(productRepo, imageStore, imageProcessor)

	orderService := order.NewService(orderRepo, cartRepo, productRepo, discountRepo, loyaltyService)
	orderService.SetPublisher(hub)

	dashboardService := dashboard.NewService(dashboardRepo)

	// ---------- Background workers ----------
	var expiryWorker *loyalty.Worker
	if cfg.LoyaltyExpiryWorker {
		expiryWorker = loyalty.NewWorker(loyaltyService, cfg.LoyaltyExpiryInterval)
		expiryWorker.Start()
	}

	// ---------- Router ----------
	healthChecks := func(ctx context.Context) map[string]error {
		return database.Ping(ctx, db, redis)
	}
	router := newRouter(routerConfig{
		jwt:            jwtService,
		healthChecks:   healthChecks,
		allowedOrigins: cfg.AllowedOrigins,
		uploadsDir:     uploadsDir,
		redeemLimit:    middleware.NewRateLimiter(redis, "redeem", middleware.PerMinute(cfg.RedeemRateLimit, cfg.RedeemRateLimit)).Handler,
		orderLimit:     middleware.NewRateLimiter(redis, "order", middleware.PerMinute(cfg.OrderRateLimit, cfg.OrderRateLimit)).Handler,
	}, handlers{
		auth:      auth.NewHandler(authService),
		loyalty:   loyalty.NewHandler(loyaltyService, userRepo),
		discount:  discount.NewHandler(discountRepo),
		cart:      cart.NewHandler(cartService),
		order:     order.NewHandler(orderService),
		product:   product.NewHandler(productService),
		branch:    branch.NewHandler(branchRepo),
		dashboard: dashboard.NewHandler(dashboardService),
		realtime:  realtime.NewHandler(hub, cfg.AllowedOrigins),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if expiryWorker != nil {
		expiryWorker.Stop()
	}
	hub.Stop()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}
