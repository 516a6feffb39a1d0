package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	store, _ := setupTestRedis(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url"); err == nil {
		t.Fatal("expected error for bad url")
	}
}

func TestRevokeAndLookup(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	revoked, err := store.IsRoomTokenRevoked(ctx, "tok-1")
	if err != nil || revoked {
		t.Fatalf("fresh token revoked=%v err=%v", revoked, err)
	}

	if err := store.RevokeRoomToken(ctx, "tok-1", "happy-team", exp); err != nil {
		t.Fatalf("RevokeRoomToken failed: %v", err)
	}
	revoked, err = store.IsRoomTokenRevoked(ctx, "tok-1")
	if err != nil || !revoked {
		t.Fatalf("revoked token revoked=%v err=%v", revoked, err)
	}

	r, ok, err := store.Lookup(ctx, "tok-1")
	if err != nil || !ok {
		t.Fatalf("Lookup ok=%v err=%v", ok, err)
	}
	if r.Room != "happy-team" || !r.ExpiresAt.Equal(exp) {
		t.Errorf("unexpected revocation %+v", r)
	}

	if _, ok, err := store.Lookup(ctx, "tok-2"); err != nil || ok {
		t.Errorf("Lookup of unknown token ok=%v err=%v", ok, err)
	}
}

func TestRevocationExpiresWithToken(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	if err := store.RevokeRoomToken(ctx, "tok", "sad-team", time.Now().Add(10*time.Minute)); err != nil {
		t.Fatalf("RevokeRoomToken failed: %v", err)
	}
	s.FastForward(9 * time.Minute)
	if revoked, _ := store.IsRoomTokenRevoked(ctx, "tok"); !revoked {
		t.Fatal("revocation dropped before token expiry")
	}
	s.FastForward(2 * time.Minute)
	if revoked, _ := store.IsRoomTokenRevoked(ctx, "tok"); revoked {
		t.Fatal("revocation kept after token expiry")
	}
}

func TestRevokeExpiredTokenKeepsMinimumTTL(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	if err := store.RevokeRoomToken(ctx, "old", "happy-team", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("RevokeRoomToken failed: %v", err)
	}
	if ttl := s.TTL(store.key("old")); ttl != time.Minute {
		t.Errorf("expected 1m ttl, got %v", ttl)
	}
}
