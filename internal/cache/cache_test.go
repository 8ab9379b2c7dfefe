package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGetFetchesOnMiss(t *testing.T) {
	calls := 0
	c := New(time.Minute, func(ctx context.Context, key string) (any, error) {
		calls++
		return key + "-value", nil
	})

	v, err := c.Get(context.Background(), "wallet-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "wallet-a-value" {
		t.Fatalf("got %v, want wallet-a-value", v)
	}
	if calls != 1 {
		t.Fatalf("expected 1 fetch call, got %d", calls)
	}
}

func TestGetServesFromCacheWithinTTL(t *testing.T) {
	calls := 0
	c := New(time.Minute, func(ctx context.Context, key string) (any, error) {
		calls++
		return calls, nil
	})

	first, _ := c.Get(context.Background(), "k")
	second, _ := c.Get(context.Background(), "k")
	if first != second {
		t.Fatalf("expected cached value on second Get, got %v then %v", first, second)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 fetch, got %d", calls)
	}
}

func TestGetRefetchesAfterTTL(t *testing.T) {
	calls := 0
	c := New(10*time.Millisecond, func(ctx context.Context, key string) (any, error) {
		calls++
		return calls, nil
	})

	c.Get(context.Background(), "k")
	time.Sleep(20 * time.Millisecond)
	c.Get(context.Background(), "k")

	if calls != 2 {
		t.Fatalf("expected 2 fetches after TTL expiry, got %d", calls)
	}
}

func TestGetWrapsFetchError(t *testing.T) {
	wantErr := errors.New("upstream unavailable")
	c := New(time.Minute, func(ctx context.Context, key string) (any, error) {
		return nil, wantErr
	})

	_, err := c.Get(context.Background(), "k")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped error to preserve the cause, got %v", err)
	}
}

func TestSweepEvictsExpiredEntries(t *testing.T) {
	c := New(10*time.Millisecond, func(ctx context.Context, key string) (any, error) {
		return "v", nil
	})
	c.Get(context.Background(), "k")
	time.Sleep(20 * time.Millisecond)
	c.Sweep()

	c.mu.RLock()
	_, ok := c.store["k"]
	c.mu.RUnlock()
	if ok {
		t.Fatal("expected Sweep to evict the expired entry")
	}
}
