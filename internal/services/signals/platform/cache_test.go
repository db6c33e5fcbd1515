package platform

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/louisbranch/signals.agent/internal/platform/clock"
)

func TestMemoryCacheExpiresPassively(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Unix(100, 0))
	cache := NewMemoryCache(fake)
	ctx := context.Background()

	if err := cache.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, found, err := cache.Get(ctx, "k")
	if err != nil || !found || string(value) != "v" {
		t.Fatalf("get = %q, %v, %v", value, found, err)
	}

	fake.Advance(time.Minute)
	if _, found, _ := cache.Get(ctx, "k"); found {
		t.Fatal("expected entry to expire at its ttl")
	}
}

func TestMemoryCacheCopiesValues(t *testing.T) {
	cache := NewMemoryCache(nil)
	ctx := context.Background()
	value := []byte("abc")
	if err := cache.Set(ctx, "k", value, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	value[0] = 'z'
	got, _, _ := cache.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("value = %q, want abc", got)
	}
}

func TestRedisCacheRoundTrip(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	cache := &RedisCache{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), Prefix: "test:"}
	t.Cleanup(func() { _ = cache.Close() })
	ctx := context.Background()

	if _, found, err := cache.Get(ctx, "missing"); err != nil || found {
		t.Fatalf("missing get = %v, %v", found, err)
	}
	if err := cache.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("test:k") {
		t.Fatal("expected prefixed key in redis")
	}
	value, found, err := cache.Get(ctx, "k")
	if err != nil || !found || string(value) != "v" {
		t.Fatalf("get = %q, %v, %v", value, found, err)
	}

	mr.FastForward(61 * time.Second)
	if _, found, _ := cache.Get(ctx, "k"); found {
		t.Fatal("expected redis entry to expire")
	}
}

func TestSegmentCacheOverRedis(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	backend := &RedisCache{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), Prefix: "test:"}
	t.Cleanup(func() { _ = backend.Close() })
	cache := NewSegmentCache(backend, time.Minute, nil, nil)

	calls := 0
	fetch := func(context.Context) ([]Segment, error) {
		calls++
		return []Segment{{PlatformSegmentID: "7", Name: "Auto"}}, nil
	}
	for i := 0; i < 3; i++ {
		segments, err := cache.List(context.Background(), "openx", Scope{PrincipalID: "acme"}, fetch)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(segments) != 1 || segments[0].Name != "Auto" {
			t.Fatalf("segments = %+v", segments)
		}
	}
	if calls != 1 {
		t.Fatalf("fetch calls = %d, want 1", calls)
	}
}
