package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// NewRedis creates a redis client. It returns nil, nil when redisURL is empty:
// refresh tokens, realtime fan-out and shared rate limits are then unavailable
// and callers fall back to their single-instance behaviour.
func NewRedis(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		log.Warn().Msg("Redis URL not configured, running without Redis")
		return nil, nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opt.PoolSize = 50
	opt.MinIdleConns = 10
	opt.DialTimeout = connectTimeout
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().Int("db", opt.DB).Msg("Connected to Redis")
	return client, nil
}

// CloseRedis closes the client; nil is a no-op
func CloseRedis(client *redis.Client) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing Redis connection")
		return
	}
	log.Info().Msg("Redis connection closed")
}

// Ping checks both stores for the health endpoint. A nil redis client is
// reported healthy since redis is optional.
func Ping(ctx context.Context, db *sqlx.DB, rdb *redis.Client) map[string]error {
	checks := map[string]error{"postgres": db.PingContext(ctx)}
	if rdb != nil {
		checks["redis"] = rdb.Ping(ctx).Err()
	}
	return checks
}
