package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"agora/gateway/internal/space"
)

// RedisStore keeps cached spaces in Redis so multiple gateway
// replicas observe the same optimistic state. Values are the space
// wire JSON, which makes a rollback write restore a byte-identical
// snapshot.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisStore{client: client, prefix: "agora:", ttl: ttl}
}

func (s *RedisStore) key(cacheKey string) string {
	return s.prefix + cacheKey
}

func (s *RedisStore) GetSpace(ctx context.Context, cacheKey string) (*space.Space, error) {
	raw, err := s.client.Get(ctx, s.key(cacheKey)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cached space: %w", err)
	}

	var value space.Space
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("unmarshal cached space: %w", err)
	}
	return &value, nil
}

func (s *RedisStore) SetSpace(ctx context.Context, cacheKey string, value *space.Space) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cached space: %w", err)
	}
	if err := s.client.Set(ctx, s.key(cacheKey), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("set cached space: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteSpace(ctx context.Context, cacheKey string) error {
	if err := s.client.Del(ctx, s.key(cacheKey)).Err(); err != nil {
		return fmt.Errorf("delete cached space: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
