package runlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLockerFromClient(client), mr
}

func TestRedisLocker_Exclusive(t *testing.T) {
	l, _ := newRedisLocker(t)
	ctx := context.Background()

	release, ok, err := l.TryAcquire(ctx, "import", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}

	if _, ok, err := l.TryAcquire(ctx, "import", time.Minute); err != nil || ok {
		t.Fatalf("second acquire should fail: ok=%v err=%v", ok, err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, _ := l.TryAcquire(ctx, "import", time.Minute); !ok {
		t.Fatal("expected lock to be free after release")
	}
}

func TestRedisLocker_ExpiredHolderCannotReleaseNewLock(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	stale, ok, _ := l.TryAcquire(ctx, "import", time.Second)
	if !ok {
		t.Fatal("acquire failed")
	}
	mr.FastForward(2 * time.Second)

	if _, ok, _ := l.TryAcquire(ctx, "import", time.Minute); !ok {
		t.Fatal("expected expired lock to be acquirable")
	}

	if err := stale(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if !mr.Exists(keyPrefix + "import") {
		t.Error("stale release deleted the new holder's lock")
	}
}

func TestRedisLocker_Unreachable(t *testing.T) {
	l, mr := newRedisLocker(t)
	mr.Close()

	if _, _, err := l.TryAcquire(context.Background(), "import", time.Minute); err == nil {
		t.Fatal("expected error when redis is down")
	}
}

func TestNewRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)

	l, err := NewRedisLocker("redis://"+mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("NewRedisLocker: %v", err)
	}
	defer l.Close()

	if _, err := NewRedisLocker("::not a url", "", 0); err == nil {
		t.Error("expected parse error")
	}
}

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	now := time.Date(2025, 5, 15, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	release, ok, _ := l.TryAcquire(ctx, "import", time.Minute)
	if !ok {
		t.Fatal("first acquire failed")
	}
	if _, ok, _ := l.TryAcquire(ctx, "import", time.Minute); ok {
		t.Fatal("second acquire should fail")
	}
	if _, ok, _ := l.TryAcquire(ctx, "other", time.Minute); !ok {
		t.Fatal("names are independent")
	}

	now = now.Add(2 * time.Minute)
	next, ok, _ := l.TryAcquire(ctx, "import", time.Minute)
	if !ok {
		t.Fatal("expired hold should be replaced")
	}

	// the expired holder must not free the new hold
	_ = release(ctx)
	if _, ok, _ := l.TryAcquire(ctx, "import", time.Minute); ok {
		t.Fatal("stale release freed the new hold")
	}

	_ = next(ctx)
	if _, ok, _ := l.TryAcquire(ctx, "import", time.Minute); !ok {
		t.Fatal("expected free lock after release")
	}
}
