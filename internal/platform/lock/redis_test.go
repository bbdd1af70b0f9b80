package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/p-n-ai/pai-learn/internal/platform/cache"
	"github.com/p-n-ai/pai-learn/internal/platform/config"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := t.Context()
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}

	endpoint, err := ctr.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Endpoint() error = %v", err)
	}
	c, err := cache.New(ctx, config.CacheConfig{Enabled: true, URL: "redis://" + endpoint})
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c.Client
}

func TestRedisLocker_ExclusiveAndRelease(t *testing.T) {
	client := startRedis(t)
	l := NewRedisLocker(client, WithRetryInterval(5*time.Millisecond))
	ctx := t.Context()

	unlock, err := l.Lock(ctx, QuizKey("l1", "q1"))
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(waitCtx, QuizKey("l1", "q1")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second Lock() error = %v, want deadline exceeded", err)
	}

	unlock()

	unlock2, err := l.Lock(ctx, QuizKey("l1", "q1"))
	if err != nil {
		t.Fatalf("Lock() after release error = %v", err)
	}
	unlock2()
}

func TestRedisLocker_HeldLockOutlivesTTL(t *testing.T) {
	client := startRedis(t)
	l := NewRedisLocker(client, WithTTL(300*time.Millisecond), WithRetryInterval(5*time.Millisecond))
	ctx := t.Context()

	unlock, err := l.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	time.Sleep(time.Second)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(waitCtx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Lock() while held past TTL error = %v, want deadline exceeded", err)
	}

	unlock()
	ttl, err := client.PTTL(ctx, "learn:lock:k").Result()
	if err != nil {
		t.Fatalf("PTTL() error = %v", err)
	}
	if ttl != -2*time.Nanosecond {
		t.Errorf("PTTL() after unlock = %v, want key gone", ttl)
	}
}

func TestRedisLocker_LostLockIsNotStolenBack(t *testing.T) {
	client := startRedis(t)
	l := NewRedisLocker(client, WithTTL(300*time.Millisecond), WithRetryInterval(5*time.Millisecond))
	ctx := t.Context()

	staleUnlock, err := l.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	// Another holder takes the key after the lease was lost.
	if err := client.Set(ctx, "learn:lock:k", "other", time.Minute).Err(); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	staleUnlock()
	got, err := client.Get(ctx, "learn:lock:k").Result()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "other" {
		t.Errorf("lock value = %q, want the other holder's token", got)
	}
	ttl, err := client.PTTL(ctx, "learn:lock:k").Result()
	if err != nil {
		t.Fatalf("PTTL() error = %v", err)
	}
	if ttl < 30*time.Second {
		t.Errorf("PTTL() = %v, stale holder must not change the other holder's expiry", ttl)
	}
}

func TestRedisLocker_NilClient(t *testing.T) {
	var l *RedisLocker
	if _, err := l.Lock(t.Context(), "k"); err == nil {
		t.Fatal("Lock() on nil locker should fail")
	}
}
