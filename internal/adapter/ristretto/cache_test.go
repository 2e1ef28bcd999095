package ristretto

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/fleetwatch/internal/port/cache"
)

var _ cache.Cache = (*Cache)(nil)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestNewRejectsZeroSize(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("expected error for zero size")
	}
}

func TestCache(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
			t.Fatal(err)
		}
		c.Wait()
		val, found, err := c.Get(ctx, "k")
		if err != nil || !found || string(val) != "v" {
			t.Fatalf("Get = %q, %v, %v", val, found, err)
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		if _, found, _ := c.Get(ctx, "missing"); found {
			t.Fatal("expected miss")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		_ = c.Set(ctx, "ow", []byte("v1"), time.Minute)
		c.Wait()
		_ = c.Set(ctx, "ow", []byte("v2"), time.Minute)
		c.Wait()
		if val, _, _ := c.Get(ctx, "ow"); string(val) != "v2" {
			t.Fatalf("got %q, want v2", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = c.Set(ctx, "del", []byte("x"), time.Minute)
		c.Wait()
		if err := c.Delete(ctx, "del"); err != nil {
			t.Fatal(err)
		}
		if _, found, _ := c.Get(ctx, "del"); found {
			t.Fatal("expected miss after Delete")
		}
		if err := c.Delete(ctx, "never-existed"); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		_ = c.Set(ctx, "a", []byte("1"), time.Minute)
		c.Wait()
		c.Clear()
		if _, found, _ := c.Get(ctx, "a"); found {
			t.Fatal("expected miss after Clear")
		}
	})
}

func TestCacheStats(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	c.Wait()
	_, _, _ = c.Get(ctx, "k")
	_, _, _ = c.Get(ctx, "missing")

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit and 1 miss", s)
	}
}
