package limiters

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisIncrementCountReset(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := NewRedis(rdb, "", 0)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := l.Increment(ctx, "alice")
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}
		if got != want {
			t.Fatalf("Increment = %d, want %d", got, want)
		}
	}

	if n, err := l.Count(ctx, "alice"); err != nil || n != 3 {
		t.Fatalf("Count = %d, %v", n, err)
	}
	if n, _ := l.Count(ctx, "bob"); n != 0 {
		t.Fatalf("expected unknown login to have zero failures, got %d", n)
	}

	if err := l.Reset(ctx, "alice"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if n, _ := l.Count(ctx, "alice"); n != 0 {
		t.Fatalf("expected reset counter, got %d", n)
	}
}

func TestRedisWindowExpiresCounter(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewRedis(rdb, "flc:", time.Minute)
	ctx := context.Background()

	if _, err := l.Increment(ctx, "alice"); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if ttl := mr.TTL("flc:alice"); ttl != time.Minute {
		t.Fatalf("expected 1m ttl, got %v", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if n, _ := l.Count(ctx, "alice"); n != 0 {
		t.Fatalf("expected expired counter, got %d", n)
	}
}

func TestRedisLaterFailuresKeepWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewRedis(rdb, "flc:", time.Minute)
	ctx := context.Background()

	if _, err := l.Increment(ctx, "alice"); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	mr.FastForward(20 * time.Second)
	if n, err := l.Increment(ctx, "alice"); err != nil || n != 2 {
		t.Fatalf("Increment = %d, %v", n, err)
	}
	if ttl := mr.TTL("flc:alice"); ttl != 40*time.Second {
		t.Fatalf("expected the window opened by the first failure, got ttl %v", ttl)
	}
}

func TestRedisConcurrentIncrementsAreNotLost(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := NewRedis(rdb, "", 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Increment(ctx, "alice")
		}()
	}
	wg.Wait()

	if n, _ := l.Count(ctx, "alice"); n != 50 {
		t.Fatalf("Count = %d, want 50", n)
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewRedis(rdb, "", 0)
	mr.Close()

	if _, err := l.Increment(context.Background(), "alice"); !errors.Is(err, ErrCounterUnavailable) {
		t.Fatalf("expected ErrCounterUnavailable, got %v", err)
	}
	if _, err := l.Count(context.Background(), "alice"); !errors.Is(err, ErrCounterUnavailable) {
		t.Fatalf("expected ErrCounterUnavailable, got %v", err)
	}
}

func TestMemoryCounter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := NewMemory(time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := m.Increment(ctx, "alice"); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}
	if n, _ := m.Count(ctx, "alice"); n != 3 {
		t.Fatalf("Count = %d, want 3", n)
	}

	now = now.Add(time.Minute)
	if n, _ := m.Count(ctx, "alice"); n != 0 {
		t.Fatalf("expected window expiry, got %d", n)
	}

	_, _ = m.Increment(ctx, "alice")
	if err := m.Reset(ctx, "alice"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if n, _ := m.Count(ctx, "alice"); n != 0 {
		t.Fatalf("expected reset counter, got %d", n)
	}
}

func TestMemoryHonoursCancelledContext(t *testing.T) {
	m := NewMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Increment(ctx, "alice"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
