package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSlot keeps documents as plain string values under a key prefix.
type RedisSlot struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisSlot(redisURL string) (*RedisSlot, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisSlotWithClient(client), nil
}

func NewRedisSlotWithClient(client *redis.Client) *RedisSlot {
	return &RedisSlot{client: client, prefix: "moodpad:doc:"}
}

// WithTTL expires every written value after ttl. Zero keeps values forever.
func (s *RedisSlot) WithTTL(ttl time.Duration) *RedisSlot {
	s.ttl = ttl
	return s
}

func (s *RedisSlot) key(k string) string {
	return s.prefix + k
}

func (s *RedisSlot) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

func (s *RedisSlot) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *RedisSlot) Client() *redis.Client { return s.client }

func (s *RedisSlot) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSlot) Close() error {
	return s.client.Close()
}
