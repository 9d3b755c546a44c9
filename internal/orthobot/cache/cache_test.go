package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/bdobrica/OrthoBot/internal/orthobot/cache"
)

func TestKey_Normalizes(t *testing.T) {
	if cache.Key("u1", "  How Do I Walk?  ") != cache.Key("u1", "how do i walk?") {
		t.Error("keys should ignore case and surrounding whitespace")
	}
	if cache.Key("u1", "hello") == cache.Key("u2", "hello") {
		t.Error("keys must be scoped per user")
	}
}

func TestMemory_PutThenGet(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory(time.Minute)

	if err := c.Put(ctx, "u1", "Knee exercises?", []byte(`{"response":"ok"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := c.Get(ctx, "u1", "knee exercises?")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(got) != `{"response":"ok"}` {
		t.Errorf("Get = %s", got)
	}
	if _, ok, _ := c.Get(ctx, "u2", "knee exercises?"); ok {
		t.Error("other user should miss")
	}
}

func TestMemory_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := cache.NewMemory(5 * time.Minute)
	c.SetClock(func() time.Time { return now })

	_ = c.Put(ctx, "u1", "hello there", []byte("v"))

	now = now.Add(4*time.Minute + 59*time.Second)
	if _, ok, _ := c.Get(ctx, "u1", "hello there"); !ok {
		t.Fatal("entry should still be live just before the TTL")
	}

	now = now.Add(time.Second)
	if _, ok, _ := c.Get(ctx, "u1", "hello there"); ok {
		t.Error("entry should be gone once the TTL has elapsed")
	}
}

func TestMemory_Purge(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := base
	c := cache.NewMemory(time.Minute)
	c.SetClock(func() time.Time { return now })

	_ = c.Put(ctx, "u1", "a", []byte("1"))
	now = base.Add(30 * time.Second)
	_ = c.Put(ctx, "u1", "b", []byte("2"))

	removed, err := c.Purge(ctx, base.Add(70*time.Second))
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if removed != 1 || c.Len() != 1 {
		t.Errorf("Purge removed %d (len %d), want 1 removed and 1 left", removed, c.Len())
	}
}

func TestMemory_StoredValueIsCopied(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory(time.Minute)
	buf := []byte("original")
	_ = c.Put(ctx, "u", "m", buf)
	buf[0] = 'X'

	got, _, _ := c.Get(ctx, "u", "m")
	if string(got) != "original" {
		t.Errorf("cache aliased the caller's buffer: %s", got)
	}
}
