package lock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"ContentRewriter/internal/ports"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLocker(rdb), mr
}

func assertMutualExclusion(t *testing.T, locker ports.Locker) {
	t.Helper()

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := locker.Acquire(context.Background(), "batch", fmt.Sprintf("holder-%d", i), time.Hour)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			if ok {
				winners.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if winners.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners.Load())
	}
}

func TestRedisLockerMutualExclusion(t *testing.T) {
	t.Parallel()

	locker, _ := newRedisLocker(t)
	assertMutualExclusion(t, locker)
}

func TestRedisLockerExpiryIgnoresLiveHolder(t *testing.T) {
	t.Parallel()

	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	if ok, _ := locker.Acquire(ctx, "batch", "crashed", time.Hour); !ok {
		t.Fatalf("first acquire should succeed")
	}
	if ok, _ := locker.Acquire(ctx, "batch", "next", time.Hour); ok {
		t.Fatalf("lock should still be held")
	}

	mr.FastForward(time.Hour + time.Second)

	if ok, _ := locker.Acquire(ctx, "batch", "next", time.Hour); !ok {
		t.Fatalf("expired lock must be acquirable")
	}
}

func TestRedisLockerReleaseOnlyByHolder(t *testing.T) {
	t.Parallel()

	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	_, _ = locker.Acquire(ctx, "batch", "owner", time.Hour)
	if err := locker.Release(ctx, "batch", "intruder"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !mr.Exists("lock:batch") {
		t.Fatalf("foreign release must not drop the lock")
	}
	if err := locker.Release(ctx, "batch", "owner"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if mr.Exists("lock:batch") {
		t.Fatalf("holder release should drop the lock")
	}
}

func TestRedisLockerReleaseAfterExpiry(t *testing.T) {
	t.Parallel()

	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	if ok, _ := locker.Acquire(ctx, "batch", "slow", time.Minute); !ok {
		t.Fatalf("acquire should succeed")
	}
	mr.FastForward(time.Minute + time.Second)

	if err := locker.Release(ctx, "batch", "slow"); err != nil {
		t.Fatalf("releasing an expired lock must not fail: %v", err)
	}
	if err := locker.Release(ctx, "never-held", "slow"); err != nil {
		t.Fatalf("releasing a missing lock must not fail: %v", err)
	}
}

func TestMemoryLockerMutualExclusion(t *testing.T) {
	t.Parallel()

	assertMutualExclusion(t, NewMemoryLocker())
}

func TestMemoryLockerExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	locker := NewMemoryLockerWithClock(func() time.Time { return now })
	ctx := context.Background()

	_, _ = locker.Acquire(ctx, "batch", "a", time.Hour)
	now = now.Add(59 * time.Minute)
	if ok, _ := locker.Acquire(ctx, "batch", "b", time.Hour); ok {
		t.Fatalf("young lock must not be acquirable")
	}
	now = now.Add(time.Minute)
	if ok, _ := locker.Acquire(ctx, "batch", "b", time.Hour); !ok {
		t.Fatalf("lock at TTL must be acquirable")
	}
	held, ok := locker.Holder("batch")
	if !ok || held.HolderToken != "b" {
		t.Fatalf("unexpected holder: %+v", held)
	}
}
