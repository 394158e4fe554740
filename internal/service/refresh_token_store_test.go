package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryRefreshTokenStore(t *testing.T) {
	store := NewMemoryRefreshTokenStore()

	if err := store.Store("jti-1", "user-1", time.Minute); err != nil {
		t.Fatalf("store: %v", err)
	}
	ok, err := store.Exists("jti-1")
	if err != nil || !ok {
		t.Fatalf("expected jti present, got %v,%v", ok, err)
	}

	if err := store.Revoke("jti-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	ok, err = store.Exists("jti-1")
	if err != nil || ok {
		t.Fatalf("expected jti revoked, got %v,%v", ok, err)
	}
}

func TestMemoryRefreshTokenStore_Expiry(t *testing.T) {
	store := NewMemoryRefreshTokenStore()
	if err := store.Store("jti-exp", "user-1", -time.Second); err != nil {
		t.Fatalf("store: %v", err)
	}
	ok, err := store.Exists("jti-exp")
	if err != nil || ok {
		t.Fatalf("expected expired jti absent, got %v,%v", ok, err)
	}
}

func TestMemoryRefreshTokenStore_EmptyJTI(t *testing.T) {
	store := NewMemoryRefreshTokenStore()
	if err := store.Store("   ", "user-1", time.Minute); err != nil {
		t.Fatalf("store: %v", err)
	}
	ok, err := store.Exists("")
	if err != nil || ok {
		t.Fatalf("expected empty jti never present, got %v,%v", ok, err)
	}
}

type mockRedisKV struct {
	data     map[string]string
	setErr   error
	lastTTL  time.Duration
	existsN  int64
	errOnGet error
}

func newMockRedisKV() *mockRedisKV {
	return &mockRedisKV{data: make(map[string]string)}
}

func (m *mockRedisKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if m.setErr != nil {
		return redis.NewStatusResult("", m.setErr)
	}
	m.data[key] = value.(string)
	m.lastTTL = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *mockRedisKV) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	if m.errOnGet != nil {
		return redis.NewIntResult(0, m.errOnGet)
	}
	var n int64
	for _, key := range keys {
		if _, ok := m.data[key]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *mockRedisKV) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := m.data[key]; ok {
			delete(m.data, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisRefreshTokenStore(t *testing.T) {
	kv := newMockRedisKV()
	store := &redisRefreshTokenStore{client: kv, prefix: "session:refresh:"}

	if err := store.Store("jti-1", "user-1", time.Minute); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, ok := kv.data["session:refresh:jti-1"]; !ok {
		t.Fatalf("expected prefixed key, got %v", kv.data)
	}
	if kv.data["session:refresh:jti-1"] != "user-1" {
		t.Fatalf("expected user id as value, got %q", kv.data["session:refresh:jti-1"])
	}

	ok, err := store.Exists("jti-1")
	if err != nil || !ok {
		t.Fatalf("expected present, got %v,%v", ok, err)
	}

	if err := store.Revoke("jti-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	ok, err = store.Exists("jti-1")
	if err != nil || ok {
		t.Fatalf("expected revoked, got %v,%v", ok, err)
	}
}

func TestRedisRefreshTokenStore_TTLFallback(t *testing.T) {
	kv := newMockRedisKV()
	store := &redisRefreshTokenStore{client: kv, prefix: "session:refresh:"}

	if err := store.Store("jti-ttl", "user-1", 0); err != nil {
		t.Fatalf("store: %v", err)
	}
	if kv.lastTTL != time.Minute {
		t.Fatalf("expected 1m fallback TTL, got %v", kv.lastTTL)
	}
}

func TestRedisRefreshTokenStore_Errors(t *testing.T) {
	kv := newMockRedisKV()
	kv.errOnGet = errors.New("redis down")
	store := &redisRefreshTokenStore{client: kv, prefix: "session:refresh:"}

	if _, err := store.Exists("jti-1"); err == nil {
		t.Fatalf("expected redis error propagated")
	}

	kv2 := newMockRedisKV()
	kv2.setErr = errors.New("redis down")
	store2 := &redisRefreshTokenStore{client: kv2, prefix: "session:refresh:"}
	if err := store2.Store("jti-1", "user-1", time.Minute); err == nil {
		t.Fatalf("expected set error propagated")
	}
}

func TestNewRedisRefreshTokenStore_NilClient(t *testing.T) {
	if store := NewRedisRefreshTokenStore(nil); store != nil {
		t.Fatalf("expected nil store for nil client")
	}
}
