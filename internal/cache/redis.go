package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"courierloc/internal/dto"

	"github.com/redis/go-redis/v9"
)

const locationsKey = "courierloc:locations"

type RedisLocationCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocationCache(client *redis.Client, ttl time.Duration) *RedisLocationCache {
	return &RedisLocationCache{client: client, ttl: ttl}
}

func (c *RedisLocationCache) Get(ctx context.Context) ([]dto.CourierLocation, error) {
	data, err := c.client.Get(ctx, locationsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var list []dto.CourierLocation
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode cached locations: %w", err)
	}
	return list, nil
}

func (c *RedisLocationCache) Set(ctx context.Context, list []dto.CourierLocation) error {
	if c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, locationsKey, data, c.ttl).Err()
}

func (c *RedisLocationCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, locationsKey).Err()
}
