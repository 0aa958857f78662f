package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterBurst(t *testing.T) {
	l := NewMemoryLimiter(1, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "k")
		if err != nil {
			t.Fatalf("Allow returned error: %v", err)
		}
		if !ok {
			t.Fatalf("request %d within burst was denied", i+1)
		}
	}

	ok, err := l.Allow(ctx, "k")
	if err != nil {
		t.Fatalf("Allow returned error: %v", err)
	}
	if ok {
		t.Fatal("request beyond burst was allowed")
	}
}

func TestMemoryLimiterRefill(t *testing.T) {
	l := NewMemoryLimiter(2, 1)
	clock := time.Unix(1000, 0)
	l.now = func() time.Time { return clock }

	ctx := context.Background()
	if ok, _ := l.Allow(ctx, "k"); !ok {
		t.Fatal("first request was denied")
	}
	if ok, _ := l.Allow(ctx, "k"); ok {
		t.Fatal("bucket should be empty")
	}

	// At 2 tokens/sec a half second refills one token.
	clock = clock.Add(500 * time.Millisecond)
	if ok, _ := l.Allow(ctx, "k"); !ok {
		t.Fatal("refilled token was not granted")
	}
	if ok, _ := l.Allow(ctx, "k"); ok {
		t.Fatal("only one token should have refilled")
	}
}

func TestMemoryLimiterRefillCapsAtBurst(t *testing.T) {
	l := NewMemoryLimiter(100, 2)
	clock := time.Unix(1000, 0)
	l.now = func() time.Time { return clock }

	ctx := context.Background()
	l.Allow(ctx, "k")

	// A long idle period must not bank more than burst tokens.
	clock = clock.Add(time.Hour)
	granted := 0
	for i := 0; i < 5; i++ {
		if ok, _ := l.Allow(ctx, "k"); ok {
			granted++
		}
	}
	if granted != 2 {
		t.Fatalf("granted %d requests after idle, want burst cap 2", granted)
	}
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	l := NewMemoryLimiter(1, 1)
	ctx := context.Background()

	if ok, _ := l.Allow(ctx, "a"); !ok {
		t.Fatal("key a denied")
	}
	if ok, _ := l.Allow(ctx, "b"); !ok {
		t.Fatal("key b must have its own bucket")
	}
}

func TestMemoryLimiterSweepEvictsStale(t *testing.T) {
	l := NewMemoryLimiter(1, 1)
	clock := time.Unix(1000, 0)
	l.now = func() time.Time { return clock }

	ctx := context.Background()
	l.Allow(ctx, "stale")

	clock = clock.Add(staleAfter + time.Minute)
	l.sinceSweep = sweepInterval - 1
	l.Allow(ctx, "fresh")

	l.mu.Lock()
	_, ok := l.buckets["stale"]
	l.mu.Unlock()
	if ok {
		t.Fatal("stale bucket survived the sweep")
	}
}

func TestNoopLimiterAlwaysAllows(t *testing.T) {
	var l NoopLimiter
	for i := 0; i < 100; i++ {
		ok, err := l.Allow(context.Background(), "any")
		if err != nil || !ok {
			t.Fatalf("noop limiter denied: ok=%v err=%v", ok, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
