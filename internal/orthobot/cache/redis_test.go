package cache_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bdobrica/OrthoBot/internal/orthobot/cache"
)

// newRedisClient connects to REDIS_ADDR (default localhost:6379) and skips
// the test when no server answers.
func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedis_PutThenGet(t *testing.T) {
	c := cache.NewRedis(newRedisClient(t), time.Minute)
	ctx := context.Background()
	user := fmt.Sprintf("test-%d", time.Now().UnixNano())

	if _, ok, err := c.Get(ctx, user, "knee exercises?"); err != nil || ok {
		t.Fatalf("Get before Put: ok=%v err=%v", ok, err)
	}
	if err := c.Put(ctx, user, "Knee exercises?", []byte(`{"response":"ok"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := c.Get(ctx, user, "  knee exercises?")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(got) != `{"response":"ok"}` {
		t.Errorf("Get = %s", got)
	}
	if _, ok, _ := c.Get(ctx, user+"-other", "knee exercises?"); ok {
		t.Error("other user should miss")
	}
}

func TestRedis_ExpiresAfterTTL(t *testing.T) {
	c := cache.NewRedis(newRedisClient(t), 200*time.Millisecond)
	ctx := context.Background()
	user := fmt.Sprintf("test-%d", time.Now().UnixNano())

	if err := c.Put(ctx, user, "hello there", []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok, _ := c.Get(ctx, user, "hello there"); !ok {
		t.Fatal("entry should be live right after Put")
	}

	time.Sleep(500 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, user, "hello there"); ok {
		t.Error("entry should be gone once the TTL has elapsed")
	}
	if n, err := c.Purge(ctx, time.Now()); n != 0 || err != nil {
		t.Errorf("Purge = %d, %v; Redis expires keys itself", n, err)
	}
}

func TestRedis_UnreachableServerIsAnError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { client.Close() })
	c := cache.NewRedis(client, time.Minute)

	if _, ok, err := c.Get(context.Background(), "u1", "hello"); err == nil || ok {
		t.Errorf("Get = ok %v, err %v; want error", ok, err)
	}
	if err := c.Put(context.Background(), "u1", "hello", []byte("v")); err == nil {
		t.Error("Put against a dead server should fail")
	}
}
