package fieldcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the redis-backed cache. Defaults can be loaded from
// the environment via envdecode.
type RedisConfig struct {
	Addr      string        `env:"REDIS_ADDR,default=localhost:6379"`
	Password  string        `env:"REDIS_PASSWORD,default="`
	DB        int           `env:"REDIS_DB,default=0"`
	KeyPrefix string        `env:"REDIS_KEY_PREFIX,default=odoo-mcp:meta:"`
	TTL       time.Duration `env:"REDIS_TTL,default=15m"`
}

// Redis is a redis-backed Cache.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Cache = (*Redis)(nil)

// NewRedis builds a Redis cache and verifies connectivity with a short ping.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, prefix: cfg.KeyPrefix, ttl: ttl}, nil
}

// NewRedisFromEnv builds a Redis cache from REDIS_* environment variables.
func NewRedisFromEnv(ctx context.Context) (*Redis, error) {
	var cfg RedisConfig
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode redis config: %w", err)
	}
	return NewRedis(ctx, cfg)
}

// Close releases the underlying redis connection.
func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, val json.RawMessage, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.ttl
	}
	if err := r.client.Set(ctx, r.prefix+key, []byte(val), ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
