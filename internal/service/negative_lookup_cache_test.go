package service

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryNegativeLookupCacheRemembersAndExpires(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryNegativeLookupCache()

	hit, err := cache.Contains(ctx, "unknown-hash")
	if err != nil {
		t.Fatalf("contains on empty cache: %v", err)
	}
	if hit {
		t.Fatal("empty cache must not report a hit")
	}

	if err := cache.Add(ctx, "unknown-hash", 50*time.Millisecond); err != nil {
		t.Fatalf("add: %v", err)
	}
	hit, err = cache.Contains(ctx, "unknown-hash")
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if !hit {
		t.Fatal("expected a hit after add")
	}

	time.Sleep(80 * time.Millisecond)
	hit, err = cache.Contains(ctx, "unknown-hash")
	if err != nil {
		t.Fatalf("contains after expiry: %v", err)
	}
	if hit {
		t.Fatal("entry must expire after its TTL")
	}
}

func TestInMemoryNegativeLookupCacheIgnoresNonPositiveTTL(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryNegativeLookupCache()

	if err := cache.Add(ctx, "h", 0); err != nil {
		t.Fatalf("add with zero ttl: %v", err)
	}
	hit, err := cache.Contains(ctx, "h")
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if hit {
		t.Fatal("zero ttl must not cache anything")
	}
}
