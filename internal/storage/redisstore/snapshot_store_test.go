package redisstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/newmedica/storefront/internal/domain"
)

func redisClientForTest(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("STOREFRONT_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis is not available: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSnapshotStore_KeyRequired(t *testing.T) {
	t.Parallel()

	store := NewSnapshotStore(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "", 0)
	t.Cleanup(func() { _ = store.Close() })

	if _, err := store.Load(context.Background(), " "); !errors.Is(err, domain.ErrSnapshotKeyRequired) {
		t.Fatalf("expected ErrSnapshotKeyRequired, got %v", err)
	}
	if err := store.Save(context.Background(), "", nil); !errors.Is(err, domain.ErrSnapshotKeyRequired) {
		t.Fatalf("expected ErrSnapshotKeyRequired, got %v", err)
	}
	if store.keyPrefix != DefaultKeyPrefix {
		t.Fatalf("unexpected default prefix %q", store.keyPrefix)
	}
}

func TestSnapshotStore_RedisRoundTrip(t *testing.T) {
	client := redisClientForTest(t)
	ctx := context.Background()

	prefix := "storefront:test:" + time.Now().UTC().Format("150405.000000") + ":"
	store := NewSnapshotStore(client, prefix, time.Minute)

	if err := store.Save(ctx, domain.SnapshotKeyCart, []byte(`{"items":[{"id":"c-1"}]}`)); err != nil {
		t.Fatalf("save: %v", err)
	}

	value, err := store.Load(ctx, domain.SnapshotKeyCart)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(value) != `{"items":[{"id":"c-1"}]}` {
		t.Fatalf("unexpected snapshot: %s", value)
	}

	ttl, err := client.TTL(ctx, prefix+domain.SnapshotKeyCart).Result()
	if err != nil || ttl <= 0 {
		t.Fatalf("expected ttl on snapshot key, got %s err=%v", ttl, err)
	}

	if err := store.Delete(ctx, domain.SnapshotKeyCart); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Load(ctx, domain.SnapshotKeyCart); !errors.Is(err, domain.ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
}
