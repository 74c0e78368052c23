package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(0)
	defer store.Close()
	ctx := context.Background()

	if _, hit, err := store.Get(ctx, "missing"); err != nil || hit {
		t.Fatalf("expected clean miss, got hit=%v err=%v", hit, err)
	}

	if err := store.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value, hit, err := store.Get(ctx, "k")
	if err != nil || !hit || string(value) != "v" {
		t.Fatalf("expected hit with v, got %q hit=%v err=%v", value, hit, err)
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, hit, _ := store.Get(ctx, "k"); hit {
		t.Fatal("expected miss after delete")
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(0)
	defer store.Close()
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if _, hit, _ := store.Get(ctx, "k"); hit {
		t.Fatal("expected entry to expire")
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(time.Minute)
	if err := store.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := store.Set(context.Background(), "k", nil, 0); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("double close should be a no-op, got %v", err)
	}
}
