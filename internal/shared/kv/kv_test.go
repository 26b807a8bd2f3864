package kv

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryStoreIncrementAndExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := NewMemoryStoreWithClock(func() time.Time { return now })

	n, err := store.Increment(ctx, "counter", time.Second)
	if err != nil || n != 1 {
		t.Fatalf("first increment: n=%d err=%v", n, err)
	}
	n, _ = store.Increment(ctx, "counter", time.Second)
	if n != 2 {
		t.Fatalf("second increment: expected 2, got %d", n)
	}

	now = now.Add(2 * time.Second)
	n, _ = store.Increment(ctx, "counter", time.Second)
	if n != 1 {
		t.Fatalf("expected counter to reset after expiry, got %d", n)
	}
}

func TestMemoryStoreSetGetDelete(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := NewMemoryStoreWithClock(func() time.Time { return now })

	if err := store.SetWithTTL(ctx, "state", "open", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	val, ok, err := store.Get(ctx, "state")
	if err != nil || !ok || val != "open" {
		t.Fatalf("get: val=%q ok=%v err=%v", val, ok, err)
	}

	now = now.Add(2 * time.Minute)
	_, ok, _ = store.Get(ctx, "state")
	if ok {
		t.Fatalf("expected value to expire")
	}

	if err := store.SetWithTTL(ctx, "keep", "v", 0); err != nil {
		t.Fatalf("set no ttl: %v", err)
	}
	if err := store.Delete(ctx, "keep"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, ok, _ = store.Get(ctx, "keep")
	if ok {
		t.Fatalf("expected value to be deleted")
	}
}

func TestRedisStoreIncrement(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	n, err := store.Increment(ctx, "counter", time.Minute)
	if err != nil || n != 1 {
		t.Fatalf("first increment: n=%d err=%v", n, err)
	}
	n, _ = store.Increment(ctx, "counter", time.Minute)
	if n != 2 {
		t.Fatalf("second increment: expected 2, got %d", n)
	}
	if mr.TTL("counter") <= 0 {
		t.Fatalf("expected ttl on counter key")
	}
}

func TestRedisStoreGetMissing(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	_, ok, err := store.Get(ctx, "absent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("expected missing key")
	}
}
