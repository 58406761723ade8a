package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL   = time.Minute
	defaultRetryWait = 50 * time.Millisecond
	releaseTimeout   = 5 * time.Second
	lockKeyPrefix    = "tracker:sync:"
)

// ErrLockLost is the cancellation cause of a lock context whose key expired
// or changed hands before unlock.
var ErrLockLost = errors.New("sync lock lost")

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the TTL only while the key still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Locker serializes syncs of the same key across processes with
// SET NX PX. A held key is renewed every ttl/3 until unlock, so the TTL only
// bounds how long a crashed holder blocks others.
type Locker struct {
	client    redis.UniversalClient
	ttl       time.Duration
	retryWait time.Duration
	logger    *slog.Logger
}

func NewLocker(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Locker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{
		client:    client,
		ttl:       ttl,
		retryWait: defaultRetryWait,
		logger:    logger.With("component", "redis_locker"),
	}
}

// Lock blocks until key is acquired or ctx is done. The returned context is
// canceled with ErrLockLost if renewal finds the key gone or held by someone
// else, and with no cause once unlock runs.
func (l *Locker) Lock(ctx context.Context, key string) (context.Context, func(), error) {
	redisKey := lockKeyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.retryWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, nil, ctx.Err()
		case <-timer.C:
		}
	}

	lockCtx, cancel := context.WithCancelCause(ctx)
	stop := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		l.keepAlive(lockCtx, cancel, stop, key, redisKey, token)
	}()

	var once sync.Once
	return lockCtx, func() {
		once.Do(func() {
			close(stop)
			<-stopped
			cancel(nil)
			l.release(key, redisKey, token)
		})
	}, nil
}

func (l *Locker) renewInterval() time.Duration {
	if d := l.ttl / 3; d > time.Millisecond {
		return d
	}
	return time.Millisecond
}

// keepAlive extends the key until stop closes or the lock context ends.
// Transient renewal errors are tolerated until a full TTL has passed since
// the last successful renewal.
func (l *Locker) keepAlive(ctx context.Context, cancel context.CancelCauseFunc, stop <-chan struct{}, key, redisKey, token string) {
	interval := l.renewInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastRenewed := time.Now()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		renewCtx, renewCancel := context.WithTimeout(context.Background(), interval)
		held, err := renewScript.Run(renewCtx, l.client, []string{redisKey}, token, l.ttl.Milliseconds()).Int()
		renewCancel()

		switch {
		case err == nil && held == 1:
			lastRenewed = time.Now()
		case err == nil:
			l.logger.Warn("sync lock taken over", "key", key)
			cancel(ErrLockLost)
			return
		case time.Since(lastRenewed) >= l.ttl:
			l.logger.Warn("sync lock expired while renewal failed", "key", key, "error", err)
			cancel(ErrLockLost)
			return
		default:
			l.logger.Warn("renew lock failed", "key", key, "error", err)
		}
	}
}

func (l *Locker) release(key, redisKey, token string) {
	// Release must run even when the caller's ctx was canceled.
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		l.logger.Warn("release lock failed", "key", key, "error", err)
	}
}
