// services/match_cache.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stake-escrow/escrow"

	"github.com/redis/go-redis/v9"
)

// MatchCache holds finalized matches. A finalized match never changes, so
// entries need no invalidation.
type MatchCache interface {
	Get(ctx context.Context, gameID uint64) (*escrow.GameMatch, bool, error)
	Put(ctx context.Context, m *escrow.GameMatch) error
}

type RedisMatchCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisMatchCache(rdb *redis.Client, ttl time.Duration) *RedisMatchCache {
	return &RedisMatchCache{rdb: rdb, ttl: ttl}
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func matchCacheKey(gameID uint64) string {
	return fmt.Sprintf("escrow:match:%d", gameID)
}

func (c *RedisMatchCache) Get(ctx context.Context, gameID uint64) (*escrow.GameMatch, bool, error) {
	data, err := c.rdb.Get(ctx, matchCacheKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var m escrow.GameMatch
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false, err
	}
	return &m, true, nil
}

func (c *RedisMatchCache) Put(ctx context.Context, m *escrow.GameMatch) error {
	if m.IsActive {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return c.rdb.SetEx(ctx, matchCacheKey(m.GameID), data, c.ttl).Err()
}
