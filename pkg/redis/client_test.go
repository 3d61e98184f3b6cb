package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/canteen-coders/canteen-client/pkg/config"
	"github.com/canteen-coders/canteen-client/pkg/kv"
	"github.com/redis/go-redis/v9"
)

func TestClientStringLifecycle(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	if err := client.Set(ctx, "canteen:client:c1:principal:token", "token-value", 10*time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if mock.ttls["canteen:client:c1:principal:token"] != 10*time.Minute {
		t.Fatalf("expected ttl to be forwarded")
	}
	token, err := client.Get(ctx, "canteen:client:c1:principal:token")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if token != "token-value" {
		t.Fatalf("expected stored token, got %q", token)
	}

	if err := client.Del(ctx, "canteen:client:c1:principal:token"); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, "canteen:client:c1:principal:token"); err != redis.Nil {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestClientBacksSessionScopedStore(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	store, err := kv.NewRedisStore(client, time.Hour)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if _, ok, err := store.Get(ctx, "cart:7"); err != nil || ok {
		t.Fatalf("expected miss, got %v %v", ok, err)
	}
	if err := store.Set(ctx, "cart:7", "[]"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if val, ok, err := store.Get(ctx, "cart:7"); err != nil || !ok || val != "[]" {
		t.Fatalf("unexpected read %q %v %v", val, ok, err)
	}
}

func TestTouchSlidesExpiry(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	if err := client.Set(ctx, "canteen:client:c1:principal:role", "CUSTOMER", time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	role, err := client.Touch(ctx, "canteen:client:c1:principal:role", time.Hour)
	if err != nil || role != "CUSTOMER" {
		t.Fatalf("touch returned %q %v", role, err)
	}
	if mock.ttls["canteen:client:c1:principal:role"] != time.Hour {
		t.Fatalf("expected ttl to slide to 1h, got %v", mock.ttls["canteen:client:c1:principal:role"])
	}

	if _, err := client.Touch(ctx, "canteen:client:c1:principal:token", time.Hour); err != redis.Nil {
		t.Fatalf("expected redis.Nil for missing key, got %v", err)
	}
	if err := client.Del(ctx); err != nil {
		t.Fatalf("del with no keys should be a no-op, got %v", err)
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	ctx := context.Background()
	if err := client.Ping(ctx); err == nil {
		t.Fatal("expected ping error")
	}
	if _, err := client.Get(ctx, "k"); err == nil {
		t.Fatal("expected get error")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on empty client should be a no-op, got %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected missing url/address to fail")
	}

	opts, err := optionsFromConfig(config.RedisConfig{
		URL:         "redis://localhost:6379/3",
		PoolSize:    7,
		DialTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 3 || opts.PoolSize != 7 || opts.DialTimeout != 2*time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache:6379" || opts.DB != 2 {
		t.Fatalf("unexpected address options %+v", opts)
	}
}

type mockCmdable struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) GetEx(ctx context.Context, key string, expiration time.Duration) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	m.ttls[key] = expiration
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
