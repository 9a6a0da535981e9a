package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"dapurpos/backend/internal/domain"
)

type RedisSessionCache struct {
	client *redis.Client
}

func NewRedisSessionCache(addr string, password string, db int) *RedisSessionCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSessionCache{client: client}
}

func (c *RedisSessionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSessionCache) Close() error {
	return c.client.Close()
}

func (c *RedisSessionCache) Get(ctx context.Context, key string) (*domain.Session, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		return nil, false, err
	}
	return &session, true, nil
}

func (c *RedisSessionCache) Set(ctx context.Context, key string, value *domain.Session, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisSessionCache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
