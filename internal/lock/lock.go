// Package lock serializes booking creation per room type so the
// availability check and the insert cannot interleave.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("timed out waiting for booking lock")

type Locker interface {
	// Acquire blocks until the key is held or ctx/the wait budget expires.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	rdb     *redis.Client
	ttl     time.Duration
	wait    time.Duration
	backoff time.Duration
	logger  *slog.Logger
}

func NewRedisLocker(rdb *redis.Client, ttl, wait time.Duration, logger *slog.Logger) *RedisLocker {
	return &RedisLocker{
		rdb:     rdb,
		ttl:     ttl,
		wait:    wait,
		backoff: 50 * time.Millisecond,
		logger:  logger,
	}
}

func (rl *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, rl.wait)
	defer cancel()

	for {
		ok, err := rl.rdb.SetNX(ctx, key, token, rl.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return func() { rl.release(key, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrLockTimeout
		case <-time.After(rl.backoff):
		}
	}
}

// release runs on a fresh context, the caller's may be done. A lock that
// cannot be released stays held until its TTL runs out.
func (rl *RedisLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	deleted, err := releaseScript.Run(ctx, rl.rdb, []string{key}, token).Int()
	if err != nil {
		rl.logger.Error("Failed to release booking lock", "key", key, "ttl", rl.ttl, "error", err)
		return
	}
	if deleted == 0 {
		rl.logger.Warn("Booking lock expired before release", "key", key, "ttl", rl.ttl)
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// LocalLocker is an in-process keyed mutex for single instance deployments
// and tests.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
	wait  time.Duration
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{
		locks: make(map[string]chan struct{}),
		wait:  wait,
	}
}

func (ll *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	ll.mu.Lock()
	ch, ok := ll.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		ll.locks[key] = ch
	}
	ll.mu.Unlock()

	timer := time.NewTimer(ll.wait)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-ch })
		}, nil
	case <-ctx.Done():
		return nil, ErrLockTimeout
	case <-timer.C:
		return nil, ErrLockTimeout
	}
}

func RoomTypeKey(roomTypeID string) string {
	return "booking_lock:room_type:" + roomTypeID
}

var (
	_ Locker = (*RedisLocker)(nil)
	_ Locker = (*LocalLocker)(nil)
)
