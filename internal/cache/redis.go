package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisStore is a Redis-backed TTL store for JSON-serializable records.
// It degrades gracefully: any Redis failure reads as a cache miss and
// writes are dropped, so callers fall back to recomputation.
type RedisStore[V any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    zerolog.Logger
}

// RedisOptions holds connection settings for a RedisStore
type RedisOptions struct {
	Address  string
	Password string
	DB       int
	PoolSize int
}

// NewRedisStore connects to Redis and returns a store whose entries expire
// after ttl. Connection failure is not fatal; the store simply misses.
func NewRedisStore[V any](opts RedisOptions, prefix string, ttl time.Duration, log zerolog.Logger) *RedisStore[V] {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", opts.Address).Msg("redis unavailable, store will operate in miss-only mode")
	}

	return &RedisStore[V]{client: client, prefix: prefix, ttl: ttl, log: log}
}

func (s *RedisStore[V]) key(k string) string {
	return fmt.Sprintf("%s:%s", s.prefix, k)
}

// Get returns the stored record for key, or ok=false on miss or error
func (s *RedisStore[V]) Get(ctx context.Context, k string) (V, bool) {
	var zero V
	data, err := s.client.Get(ctx, s.key(k)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.log.Warn().Err(err).Str("key", k).Msg("redis get failed")
		}
		return zero, false
	}
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		s.log.Warn().Err(err).Str("key", k).Msg("redis record unmarshal failed")
		return zero, false
	}
	return v, true
}

// Set stores the record under key with the store TTL. Errors are logged
// and swallowed; the next Get recomputes.
func (s *RedisStore[V]) Set(ctx context.Context, k string, v V) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Warn().Err(err).Str("key", k).Msg("redis record marshal failed")
		return
	}
	if err := s.client.Set(ctx, s.key(k), data, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", k).Msg("redis set failed")
	}
}

// Close releases the underlying client
func (s *RedisStore[V]) Close() error {
	return s.client.Close()
}
