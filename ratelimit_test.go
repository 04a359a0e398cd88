package siteauth

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) (*RedisRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisRateLimiter(client, limit, window, nil), mr
}

func TestRedisRateLimiterAllowsUpToLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t, 3, time.Minute)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("mara@example.com") {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if limiter.Allow("mara@example.com") {
		t.Error("attempt over the limit should be denied")
	}
	// Other keys are unaffected.
	if !limiter.Allow("other@example.com") {
		t.Error("a different key must have its own window")
	}
}

func TestRedisRateLimiterWindowExpires(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, time.Minute)

	if !limiter.Allow("mara@example.com") {
		t.Fatal("first attempt should be allowed")
	}
	if limiter.Allow("mara@example.com") {
		t.Fatal("second attempt should be denied")
	}

	mr.FastForward(2 * time.Minute)
	if !limiter.Allow("mara@example.com") {
		t.Error("attempts should be allowed again after the window")
	}
}

func TestRedisRateLimiterFailsOpen(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, time.Minute)
	mr.Close()

	if !limiter.Allow("mara@example.com") {
		t.Error("an unreachable redis must not lock users out")
	}
}
