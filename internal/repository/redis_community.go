package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/GoPolymarket/guildgate/internal/config"
	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/redis/go-redis/v9"
)

func NewRedisClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return rdb, nil
}

// RedisCommunityCache 缓存社区记录，减少每个请求的数据库查询
type RedisCommunityCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCommunityCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCommunityCache {
	if prefix == "" {
		prefix = "guildgate"
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisCommunityCache{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisCommunityCache) key(id string) string {
	return fmt.Sprintf("%s:community:%s", r.prefix, id)
}

// Get returns (nil, nil) on a cache miss.
func (r *RedisCommunityCache) Get(ctx context.Context, id string) (*model.Community, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var c model.Community
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *RedisCommunityCache) Set(ctx context.Context, c *model.Community) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(c.ID), payload, r.ttl).Err()
}

func (r *RedisCommunityCache) Invalidate(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}
