package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prepended to every key
	Prefix string
}

// RedisStatsCache keeps computed statistics in Redis as JSON. Redis errors
// are logged and reported as cache misses.
type RedisStatsCache struct {
	rdb    *goredis.Client
	prefix string
	log    *zap.Logger
}

func NewRedisStatsCache(ctx context.Context, opts RedisOptions, log *zap.Logger) (*RedisStatsCache, error) {
	if opts.Addr == "" {
		return nil, errors.New("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "learnprogress:"
	}
	return &RedisStatsCache{
		rdb:    rdb,
		prefix: prefix,
		log:    log.With(zap.String("service", "RedisStatsCache")),
	}, nil
}

func (c *RedisStatsCache) Get(ctx context.Context, key string, dst interface{}) bool {
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := sonic.Unmarshal(raw, dst); err != nil {
		c.log.Warn("cache entry undecodable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *RedisStatsCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	raw, err := sonic.Marshal(value)
	if err != nil {
		c.log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		c.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisStatsCache) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	if err := c.rdb.Del(ctx, full...).Err(); err != nil {
		c.log.Warn("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (c *RedisStatsCache) Close() error {
	return c.rdb.Close()
}
