package redis

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"connect-go/internal/config"
	"connect-go/internal/lock"
)

const pairLockKeyPrefix = "lock:pair:"

// releaseScript deletes the lock only if it is still held by the caller's token,
// so an expired-and-reacquired lock is never released by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the TTL only while the caller still owns the lock.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// redisPairLocker 是 lock.PairLocker 接口的 Redis 实现，
// 用于多个 API 实例之间按用户对串行化连接请求的创建。
type redisPairLocker struct {
	client *redis.Client
	cfg    config.LockConfig
}

// NewRedisPairLocker 创建一个新的 redisPairLocker 实例。
func NewRedisPairLocker(client *redis.Client, cfg config.LockConfig) lock.PairLocker {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 25 * time.Millisecond
	}
	return &redisPairLocker{client: client, cfg: cfg}
}

// Lock polls SET NX until it wins, ctx is done, or WaitTimeout elapses.
func (l *redisPairLocker) Lock(ctx context.Context, a, b uint) (func(), error) {
	key := pairLockKeyPrefix + lock.PairKey(a, b)
	token := uuid.NewString()

	if l.cfg.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.WaitTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(l.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.cfg.TTL).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("failed to acquire pair lock %s: %w", key, err)
		}
		if ok {
			stop := make(chan struct{})
			stopped := make(chan struct{})
			go l.keepAlive(key, token, stop, stopped)

			var once sync.Once
			return func() {
				once.Do(func() {
					close(stop)
					<-stopped
					l.release(key, token)
				})
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w %s: %w", lock.ErrLockTimeout, key, ctx.Err())
		case <-ticker.C:
		}
	}
}

// keepAlive 在持有锁期间每 TTL/3 续期一次，锁被他人接管后退出。
func (l *redisPairLocker) keepAlive(key, token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	interval := l.cfg.TTL / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := renewScript.Run(ctx, l.client, []string{key}, token, l.cfg.TTL.Milliseconds()).Int64()
			cancel()
			if err != nil {
				log.Printf("Error renewing pair lock %s: %v", key, err)
				continue
			}
			if n == 0 {
				log.Printf("Pair lock %s lost before release", key)
				return
			}
		}
	}
}

func (l *redisPairLocker) release(key, token string) {
	// The caller's context may already be cancelled; release on a fresh one.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		log.Printf("Error releasing pair lock %s: %v", key, err)
	}
}
