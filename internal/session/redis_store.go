// Package session keeps room token revocations in Redis.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revocation is the value stored for each revoked token.
type Revocation struct {
	Room      string    `json:"room"`
	RevokedAt time.Time `json:"revoked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RedisStore records revoked room tokens until they would have expired anyway.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
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
	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "moodpad:revoked:",
		now:    time.Now,
	}
}

func (s *RedisStore) key(tokenID string) string {
	return s.prefix + tokenID
}

// RevokeRoomToken marks tokenID revoked. Tokens already past exp are
// still recorded for a minute so a racing handshake sees the revocation.
func (s *RedisStore) RevokeRoomToken(ctx context.Context, tokenID, room string, exp time.Time) error {
	now := s.now()
	data, err := json.Marshal(Revocation{Room: room, RevokedAt: now, ExpiresAt: exp})
	if err != nil {
		return fmt.Errorf("marshal revocation: %w", err)
	}
	ttl := exp.Sub(now)
	if ttl < time.Minute {
		ttl = time.Minute
	}
	if err := s.client.Set(ctx, s.key(tokenID), data, ttl).Err(); err != nil {
		return fmt.Errorf("revoke room token: %w", err)
	}
	return nil
}

func (s *RedisStore) IsRoomTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("lookup revocation: %w", err)
	}
	return n > 0, nil
}

// Lookup returns the stored revocation for tokenID, or ok=false.
func (s *RedisStore) Lookup(ctx context.Context, tokenID string) (Revocation, bool, error) {
	raw, err := s.client.Get(ctx, s.key(tokenID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Revocation{}, false, nil
	}
	if err != nil {
		return Revocation{}, false, fmt.Errorf("lookup revocation: %w", err)
	}
	var r Revocation
	if err := json.Unmarshal(raw, &r); err != nil {
		return Revocation{}, false, fmt.Errorf("unmarshal revocation: %w", err)
	}
	return r, true, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
