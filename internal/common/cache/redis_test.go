package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) *RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c, err := NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestBLMoveMovesTailToHead(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.LPush(ctx, "src", "first", "second"); err != nil {
		t.Fatal(err)
	}

	// "first" was pushed first, so it sits at the tail of src.
	value, err := c.BLMove(ctx, "src", "dst", "RIGHT", "LEFT", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if value != "first" {
		t.Errorf("moved %q, want %q", value, "first")
	}

	srcLen, _ := c.LLen(ctx, "src")
	dstLen, _ := c.LLen(ctx, "dst")
	if srcLen != 1 || dstLen != 1 {
		t.Errorf("lengths src=%d dst=%d, want 1/1", srcLen, dstLen)
	}
}

func TestBLMoveTimeoutReturnsEmpty(t *testing.T) {
	c := newTestCache(t)

	value, err := c.BLMove(context.Background(), "empty", "dst", "RIGHT", "LEFT", 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if value != "" {
		t.Errorf("value = %q, want empty on timeout", value)
	}
}
