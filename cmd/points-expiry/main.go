// Command points-expiry runs one loyalty points expiry sweep and exits.
// Schedule it from cron when the API runs with LOYALTY_EXPIRY_WORKER=false.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/qahwa/cafe-api/internal/config"
	"github.com/qahwa/cafe-api/internal/domain/loyalty"
	"github.com/qahwa/cafe-api/internal/pkg/database"
	"github.com/qahwa/cafe-api/internal/pkg/logger"
	"github.com/qahwa/cafe-api/internal/pkg/realtime"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()
	logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
	})

	log.Info().Msg("Starting points-expiry")

	db, err := database.NewPostgres(cfg.DatabaseURL, database.DefaultPool())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	rdb, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received")
		cancel()
	}()

	// Balance events reach connected clients through the API instances
	// subscribed to the same redis channel.
	hub := realtime.NewHub(rdb)
	defer hub.Stop()

	svc := loyalty.NewService(loyalty.NewRepository(db), nil, nil, nil, loyalty.Options{
		BaseRate:        cfg.LoyaltyBaseRate,
		ExpiringWindow:  cfg.LoyaltyExpiringWindow,
		ExpiryBatchSize: cfg.LoyaltyExpiryBatchSize,
	})
	svc.SetPublisher(hub)

	summary, err := svc.ExpireDue(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Expiry sweep aborted")
		return 1
	}

	log.Info().
		Int("users", summary.Users).
		Int("points", summary.Points).
		Int("failed", summary.Failed).
		Msg("points-expiry finished")

	if summary.Failed > 0 {
		return 1
	}
	return 0
}
