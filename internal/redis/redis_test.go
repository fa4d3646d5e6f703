package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connect-go/internal/config"
	"connect-go/internal/lock"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisPairLocker_SharedKeyAcrossDirections(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewRedisPairLocker(client, config.LockConfig{
		TTL:           time.Second,
		RetryInterval: 5 * time.Millisecond,
		WaitTimeout:   50 * time.Millisecond,
	})
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, 9, 4)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:pair:4:9"))

	_, err = locker.Lock(ctx, 4, 9)
	require.Error(t, err)
	assert.ErrorIs(t, err, lock.ErrLockTimeout)

	unlock()
	assert.False(t, mr.Exists("lock:pair:4:9"))

	unlock2, err := locker.Lock(ctx, 4, 9)
	require.NoError(t, err)
	unlock2()
}

func TestRedisPairLocker_ReleaseKeepsForeignToken(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewRedisPairLocker(client, config.LockConfig{TTL: time.Second})

	unlock, err := locker.Lock(context.Background(), 1, 2)
	require.NoError(t, err)

	// Simulate expiry and takeover by another instance.
	require.NoError(t, mr.Set("lock:pair:1:2", "someone-else"))
	unlock()

	val, err := mr.Get("lock:pair:1:2")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}

func TestRedisPairLocker_Serialises(t *testing.T) {
	_, client := newTestClient(t)
	locker := NewRedisPairLocker(client, config.LockConfig{
		TTL:           time.Second,
		RetryInterval: time.Millisecond,
		WaitTimeout:   5 * time.Second,
	})

	var mu sync.Mutex
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), 1, 2)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			counter++
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, counter)
}

func TestRedisTokenBlacklist(t *testing.T) {
	mr, client := newTestClient(t)
	bl := NewRedisTokenBlacklist(client)
	ctx := context.Background()

	revoked, err := bl.IsBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, bl.Add(ctx, "jti-1", time.Now().Add(time.Minute)))
	revoked, err = bl.IsBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	// Already-expired tokens are not stored.
	require.NoError(t, bl.Add(ctx, "jti-2", time.Now().Add(-time.Minute)))
	assert.False(t, mr.Exists("bl:jti:jti-2"))

	mr.FastForward(2 * time.Minute)
	revoked, err = bl.IsBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisPairLocker_RenewsWhileHeld(t *testing.T) {
	mr, client := newTestClient(t)
	ttl := 300 * time.Millisecond
	locker := NewRedisPairLocker(client, config.LockConfig{TTL: ttl})

	unlock, err := locker.Lock(context.Background(), 5, 6)
	require.NoError(t, err)

	// 模拟时间流逝，锁即将过期；只有续期能把 TTL 拉回
	mr.FastForward(250 * time.Millisecond)

	assert.Eventually(t, func() bool {
		return mr.TTL("lock:pair:5:6") > 200*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond, "lock TTL was not renewed")

	unlock()
	assert.False(t, mr.Exists("lock:pair:5:6"))
}
