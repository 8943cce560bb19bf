package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// TokenCache 缓存 Token 校验结果，key 为 Token 的摘要
type TokenCache interface {
	Get(ctx context.Context, key string) (*Identity, bool, error)
	Set(ctx context.Context, key string, identity *Identity, ttl time.Duration) error
}

// RedisCache 把校验结果以 JSON 形式存放在 Redis 中
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache 解析 redis:// URL 并连接，连接失败时返回错误
func NewRedisCache(ctx context.Context, redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

// Get 读取缓存，未命中时 ok 为 false
func (r *RedisCache) Get(ctx context.Context, key string) (*Identity, bool, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var identity Identity
	if err := json.Unmarshal(value, &identity); err != nil {
		return nil, false, err
	}
	return &identity, true, nil
}

// Set 写入缓存
func (r *RedisCache) Set(ctx context.Context, key string, identity *Identity, ttl time.Duration) error {
	payload, err := json.Marshal(identity)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, payload, ttl).Err()
}

// Close 关闭 Redis 连接
func (r *RedisCache) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
