// Package cache keeps the short-lived manager location list so that several map consoles
// polling every two seconds share one database query.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"courierloc/config"
	"courierloc/internal/dto"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrMiss is returned by Get when nothing fresh is cached.
var ErrMiss = errors.New("cache miss")

type LocationCache interface {
	Get(ctx context.Context) ([]dto.CourierLocation, error)
	Set(ctx context.Context, list []dto.CourierLocation) error
	Invalidate(ctx context.Context) error
}

// New returns a Redis-backed cache when an address is configured, otherwise an in-process one.
func New(redisCfg config.RedisConfig, ttl time.Duration, logger *zap.Logger) LocationCache {
	if redisCfg.Addr == "" {
		return NewMemoryLocationCache(ttl)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	if logger != nil {
		logger.Info("location cache uses redis", zap.String("addr", redisCfg.Addr))
	}
	return NewRedisLocationCache(client, ttl)
}

type MemoryLocationCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	list    []dto.CourierLocation
	expires time.Time
	now     func() time.Time
}

func NewMemoryLocationCache(ttl time.Duration) *MemoryLocationCache {
	return &MemoryLocationCache{ttl: ttl, now: time.Now}
}

func (c *MemoryLocationCache) Get(_ context.Context) ([]dto.CourierLocation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.list == nil || !c.now().Before(c.expires) {
		return nil, ErrMiss
	}
	out := make([]dto.CourierLocation, len(c.list))
	copy(out, c.list)
	return out, nil
}

func (c *MemoryLocationCache) Set(_ context.Context, list []dto.CourierLocation) error {
	if c.ttl <= 0 {
		return nil
	}
	stored := make([]dto.CourierLocation, len(list))
	copy(stored, list)
	c.mu.Lock()
	c.list = stored
	c.expires = c.now().Add(c.ttl)
	c.mu.Unlock()
	return nil
}

func (c *MemoryLocationCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	c.list = nil
	c.mu.Unlock()
	return nil
}
