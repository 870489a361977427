package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemory_InvalidatePattern(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	_ = c.Set(ctx, ProductKey(1), []byte("a"), 0)
	_ = c.Set(ctx, ProductKey(2), []byte("b"), 0)
	_ = c.Set(ctx, ProductListKey("q=x"), []byte("c"), 0)

	if err := c.Invalidate(ctx, ProductListPattern); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := c.Get(ctx, ProductListKey("q=x")); ok {
		t.Fatalf("list key should be gone")
	}
	if _, ok, _ := c.Get(ctx, ProductKey(1)); !ok {
		t.Fatalf("product key must survive list invalidation")
	}

	if err := c.Invalidate(ctx, ProductKey(2)); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(ctx, ProductKey(2)); ok {
		t.Fatalf("exact key should be gone")
	}
}

func TestMemory_TTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	if v, ok, _ := c.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Fatalf("expected hit")
	}
	now = now.Add(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatalf("expected expiry")
	}
}

func TestMemory_BadPattern(t *testing.T) {
	if err := NewMemory().Invalidate(context.Background(), "["); err == nil {
		t.Fatalf("expected pattern error")
	}
}
