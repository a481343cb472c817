package runlock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Release gives a held lock back
type Release func(ctx context.Context) error

// Locker grants at most one holder per name at a time. A lock not released
// expires after its ttl so a crashed holder cannot block later runs.
type Locker interface {
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (Release, bool, error)
}

const keyPrefix = "brocante:lock:"

// releaseScript deletes the key only while it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares the lock between every process using the same Redis
type RedisLocker struct {
	redis *redis.Client
}

// NewRedisLocker connects to redisURL and checks it answers
func NewRedisLocker(redisURL, password string, db int) (*RedisLocker, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if password != "" {
		opt.Password = password
	}
	if db != 0 {
		opt.DB = db
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisLocker{redis: client}, nil
}

// NewRedisLockerFromClient wraps an existing client
func NewRedisLockerFromClient(client *redis.Client) *RedisLocker {
	return &RedisLocker{redis: client}
}

func (l *RedisLocker) Close() error { return l.redis.Close() }

// TryAcquire sets the lock key if absent
func (l *RedisLocker) TryAcquire(ctx context.Context, name string, ttl time.Duration) (Release, bool, error) {
	key := keyPrefix + name
	token := uuid.NewString()

	ok, err := l.redis.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.redis, []string{key}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("release lock %s: %w", name, err)
		}
		return nil
	}
	return release, true, nil
}

// LocalLocker is the in-process fallback when no Redis is configured
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localHold
	now   func() time.Time
	nextN uint64
}

type localHold struct {
	n       uint64
	expires time.Time
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localHold), now: time.Now}
}

// TryAcquire takes name unless another unexpired hold exists
func (l *LocalLocker) TryAcquire(_ context.Context, name string, ttl time.Duration) (Release, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.held[name]; ok && now.Before(h.expires) {
		return nil, false, nil
	}

	l.nextN++
	n := l.nextN
	l.held[name] = localHold{n: n, expires: now.Add(ttl)}

	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if h, ok := l.held[name]; ok && h.n == n {
			delete(l.held, name)
		}
		return nil
	}
	return release, true, nil
}
