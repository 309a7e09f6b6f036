package services

import (
	"context"
	"time"

	"transcomarapa/pkg/cache"
)

// CacheService is the slice of Redis the sales engine needs: JSON value
// caching plus the token-guarded SetNX/release pair the seat locks build on.
type CacheService interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	SetNX(ctx context.Context, key, value string, expiration time.Duration) (bool, error)
	ReleaseIfHeld(ctx context.Context, key, token string) (bool, error)
	GetTTL(ctx context.Context, key string) (time.Duration, error)

	Ping(ctx context.Context) error
}

type cacheService struct {
	redis *cache.RedisCache
}

func NewCacheService(redis *cache.RedisCache) CacheService {
	return &cacheService{redis: redis}
}

func (s *cacheService) Get(ctx context.Context, key string, dest interface{}) error {
	return s.redis.Get(ctx, key, dest)
}

func (s *cacheService) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return s.redis.Set(ctx, key, value, expiration)
}

func (s *cacheService) Delete(ctx context.Context, keys ...string) error {
	return s.redis.Delete(ctx, keys...)
}

func (s *cacheService) Exists(ctx context.Context, key string) (bool, error) {
	return s.redis.Exists(ctx, key)
}

func (s *cacheService) SetNX(ctx context.Context, key, value string, expiration time.Duration) (bool, error) {
	return s.redis.SetNX(ctx, key, value, expiration)
}

func (s *cacheService) ReleaseIfHeld(ctx context.Context, key, token string) (bool, error) {
	return s.redis.ReleaseIfHeld(ctx, key, token)
}

func (s *cacheService) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	return s.redis.GetTTL(ctx, key)
}

func (s *cacheService) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx)
}
