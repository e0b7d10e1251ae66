package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/starford/macrolog/internal/models"
)

// Redis is a persistent cache kept in redis with native key expiry.
type Redis struct {
	rdb    *goredis.Client
	prefix string
}

// RedisOptions configures DialRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// DialRedis connects to redis and verifies the connection.
func DialRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}
	return NewRedis(rdb, opts.Prefix), nil
}

// NewRedis wraps an existing client.
func NewRedis(rdb *goredis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "macrolog:estimate:"
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

// Get implements Cache.
func (c *Redis) Get(ctx context.Context, key string) (*models.MacroResult, bool, error) {
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: redis get: %w", err)
	}
	var v models.MacroResult
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false, fmt.Errorf("cache: redis decode %q: %w", key, err)
	}
	return &v, true, nil
}

// Set implements Cache.
func (c *Redis) Set(ctx context.Context, key string, v models.MacroResult, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: redis encode: %w", err)
	}
	if err := c.rdb.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (c *Redis) Close() error {
	return c.rdb.Close()
}

var _ Cache = (*Redis)(nil)
