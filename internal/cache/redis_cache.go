package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tokoerp/backend/internal/domain"
)

type RedisUnitCache struct {
	client *redis.Client
}

func NewRedisUnitCache(addr string, password string, db int) *RedisUnitCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisUnitCache{client: client}
}

func (c *RedisUnitCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisUnitCache) Close() error {
	return c.client.Close()
}

func (c *RedisUnitCache) Get(ctx context.Context, id int64) (*domain.Unit, bool, error) {
	val, err := c.client.Get(ctx, unitKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var unit domain.Unit
	if err := json.Unmarshal([]byte(val), &unit); err != nil {
		return nil, false, err
	}
	return &unit, true, nil
}

func (c *RedisUnitCache) Set(ctx context.Context, unit *domain.Unit, ttl time.Duration) error {
	if unit == nil {
		return nil
	}
	payload, err := json.Marshal(unit)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, unitKey(unit.ID), payload, ttl).Err()
}

func (c *RedisUnitCache) Delete(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, unitKey(id))
	}
	return c.client.Del(ctx, keys...).Err()
}
