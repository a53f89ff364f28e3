package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/segyhp/rental-billing/internal/domain"
)

// SettingsCache holds the last loaded settings snapshot. Get returns nil on
// a miss.
type SettingsCache interface {
	Get(ctx context.Context) (*domain.Settings, error)
	Set(ctx context.Context, settings domain.Settings, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type RedisSettingsCache struct {
	client RedisClient
	key    string
	logger *zap.Logger
}

func NewRedisSettingsCache(client RedisClient, keyPrefix string, logger *zap.Logger) *RedisSettingsCache {
	return &RedisSettingsCache{
		client: client,
		key:    keyPrefix + "settings",
		logger: logger,
	}
}

func (c *RedisSettingsCache) Get(ctx context.Context) (*domain.Settings, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings from cache: %w", err)
	}

	var s domain.Settings
	if err := json.Unmarshal(data, &s); err != nil {
		c.logger.Warn("dropping corrupted settings cache entry", zap.Error(err))
		_ = c.client.Del(ctx, c.key)
		return nil, nil
	}
	return &s, nil
}

func (c *RedisSettingsCache) Set(ctx context.Context, settings domain.Settings, ttl time.Duration) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := c.client.Set(ctx, c.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set settings in cache: %w", err)
	}
	return nil
}

func (c *RedisSettingsCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate settings cache: %w", err)
	}
	return nil
}

var _ SettingsCache = (*RedisSettingsCache)(nil)

type MemorySettingsCache struct {
	mu        sync.RWMutex
	value     *domain.Settings
	expiresAt time.Time
	nowFn     func() time.Time
}

func NewMemorySettingsCache() *MemorySettingsCache {
	return &MemorySettingsCache{nowFn: time.Now}
}

func (c *MemorySettingsCache) Get(context.Context) (*domain.Settings, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.value == nil || !c.nowFn().Before(c.expiresAt) {
		return nil, nil
	}
	s := *c.value
	return &s, nil
}

func (c *MemorySettingsCache) Set(_ context.Context, settings domain.Settings, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = &settings
	c.expiresAt = c.nowFn().Add(ttl)
	return nil
}

func (c *MemorySettingsCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = nil
	return nil
}

var _ SettingsCache = (*MemorySettingsCache)(nil)
