package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RefreshStore keeps hashes of issued refresh tokens so they can be rotated and revoked
type RefreshStore interface {
	Save(ctx context.Context, tokenHash string, userID uuid.UUID, ttl time.Duration) error
	Lookup(ctx context.Context, tokenHash string) (uuid.UUID, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAll(ctx context.Context, userID uuid.UUID) error
}

type redisRefreshStore struct {
	redis *redis.Client // nil if Redis disabled
}

// NewRedisRefreshStore stores refresh token hashes in redis. Without redis
// tokens are issued but cannot be refreshed.
func NewRedisRefreshStore(rdb *redis.Client) RefreshStore {
	return &redisRefreshStore{redis: rdb}
}

func tokenKey(hash string) string {
	return "refresh:" + hash
}

func userKey(userID uuid.UUID) string {
	return "refresh:user:" + userID.String()
}

func (s *redisRefreshStore) Save(ctx context.Context, tokenHash string, userID uuid.UUID, ttl time.Duration) error {
	if s.redis == nil {
		return nil
	}
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, tokenKey(tokenHash), userID.String(), ttl)
	pipe.SAdd(ctx, userKey(userID), tokenHash)
	pipe.Expire(ctx, userKey(userID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

func (s *redisRefreshStore) Lookup(ctx context.Context, tokenHash string) (uuid.UUID, error) {
	if s.redis == nil {
		return uuid.Nil, ErrInvalidRefreshToken
	}
	val, err := s.redis.Get(ctx, tokenKey(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, ErrInvalidRefreshToken
		}
		return uuid.Nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, ErrInvalidRefreshToken
	}
	return id, nil
}

func (s *redisRefreshStore) Revoke(ctx context.Context, tokenHash string) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Del(ctx, tokenKey(tokenHash)).Err()
}

func (s *redisRefreshStore) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	if s.redis == nil {
		return nil
	}
	hashes, err := s.redis.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("list refresh tokens: %w", err)
	}
	keys := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		keys = append(keys, tokenKey(h))
	}
	keys = append(keys, userKey(userID))
	return s.redis.Del(ctx, keys...).Err()
}
