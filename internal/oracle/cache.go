package oracle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"DeFAI-Agent/internal/config"

	"github.com/redis/go-redis/v9"
)

// RoundCache 缓存已结算轮次的锚定价格。历史轮次一旦结算就不再变化，
// 因此缓存命中可以安全地替代一次聚合服务调用。
type RoundCache interface {
	Get(ctx context.Context, feedID string, roundID int64) (float64, bool)
	Set(ctx context.Context, feedID string, roundID int64, price float64)
}

// RedisRoundCache 是基于 Redis 的轮次价格缓存。
type RedisRoundCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRoundCache 连接 Redis 并返回缓存实例。
func NewRedisRoundCache(ctx context.Context, cfg config.CacheConfig) (*RedisRoundCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisRoundCache{client: client, ttl: ttl}, nil
}

// Get 读取缓存的轮次价格，未命中或读取失败返回 false。
func (c *RedisRoundCache) Get(ctx context.Context, feedID string, roundID int64) (float64, bool) {
	raw, err := c.client.Get(ctx, roundKey(feedID, roundID)).Result()
	if err != nil {
		return 0, false
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

// Set 写入轮次价格，写入失败只影响命中率，不向上传播。
func (c *RedisRoundCache) Set(ctx context.Context, feedID string, roundID int64, price float64) {
	_ = c.client.Set(ctx, roundKey(feedID, roundID), strconv.FormatFloat(price, 'f', -1, 64), c.ttl).Err()
}

// Close 释放 Redis 连接。
func (c *RedisRoundCache) Close() error {
	return c.client.Close()
}

func roundKey(feedID string, roundID int64) string {
	return fmt.Sprintf("defai:anchor:%s:%d", feedID, roundID)
}

var _ RoundCache = (*RedisRoundCache)(nil)
