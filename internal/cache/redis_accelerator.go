package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"frlproxy/core/internal/infrastructure/config"
	"frlproxy/core/internal/infrastructure/logger"
	"frlproxy/core/internal/store"

	"github.com/redis/go-redis/v9"
)

// RedisAccelerator is the optional read-through cache tier in front of the
// store-backed CacheEntry table (SPEC_FULL.md §4.3). It is never the sole
// source of truth — a Get miss or an unreachable Redis always falls
// through to the durable store.
type RedisAccelerator struct {
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger
}

var _ Accelerator = (*RedisAccelerator)(nil)

// NewRedisAccelerator builds an Accelerator from cfg.Cache.Redis, or
// returns nil if disabled.
func NewRedisAccelerator(cfg *config.RedisCacheConfig, log logger.Logger) Accelerator {
	if !cfg.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	return &RedisAccelerator{client: client, ttl: ttl, log: log.WithField("component", "cache.redis")}
}

func cacheKey(fingerprint string) string {
	return "frl:cache:" + fingerprint
}

type cachedResponse struct {
	ID         string            `json:"id"`
	RequestID  string            `json:"request_id"`
	Status     int               `json:"status"`
	Body       []byte            `json:"body"`
	Headers    map[string]string `json:"headers"`
}

func (a *RedisAccelerator) Get(ctx context.Context, fingerprint string) (*store.StoredResponse, bool) {
	raw, err := a.client.Get(ctx, cacheKey(fingerprint)).Bytes()
	if err != nil {
		if err != redis.Nil {
			a.log.WithField("error", err.Error()).Warn("redis accelerator get failed, falling through to store")
		}
		return nil, false
	}
	var cr cachedResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, false
	}
	return &store.StoredResponse{
		ID:        cr.ID,
		RequestID: cr.RequestID,
		Status:    cr.Status,
		Body:      cr.Body,
		Headers:   cr.Headers,
	}, true
}

func (a *RedisAccelerator) Set(ctx context.Context, fingerprint string, resp *store.StoredResponse) {
	cr := cachedResponse{ID: resp.ID, RequestID: resp.RequestID, Status: resp.Status, Body: resp.Body, Headers: resp.Headers}
	raw, err := json.Marshal(cr)
	if err != nil {
		return
	}
	if err := a.client.Set(ctx, cacheKey(fingerprint), raw, a.ttl).Err(); err != nil {
		a.log.WithField("error", err.Error()).Warn("redis accelerator set failed")
	}
}

func (a *RedisAccelerator) Delete(ctx context.Context, fingerprint string) {
	if err := a.client.Del(ctx, cacheKey(fingerprint)).Err(); err != nil {
		a.log.WithField("error", err.Error()).Warn("redis accelerator delete failed")
	}
}
