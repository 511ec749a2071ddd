package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisChatLocker_Exclusive(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	locker := NewRedisChatLocker(client, time.Minute)

	unlock, ok, err := locker.TryLock(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("summary:lock:42"))

	_, ok, err = locker.TryLock(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	// 其他会话互不影响
	unlockOther, ok, err := locker.TryLock(ctx, 43)
	require.NoError(t, err)
	assert.True(t, ok)
	unlockOther()

	unlock()
	assert.False(t, mr.Exists("summary:lock:42"))

	unlock2, ok, err := locker.TryLock(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)
	unlock2()
}

func TestRedisChatLocker_ReleaseOnlyOwnToken(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	locker := &redisChatLocker{redisClient: client, ttl: time.Second}

	_, ok, err := locker.TryLock(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)

	// 锁过期后被他人持有
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("summary:lock:1", "someone-else"))

	err = locker.release(ctx, "summary:lock:1", "stale-token")
	assert.ErrorIs(t, err, ErrLockNotHeld)
	got, _ := mr.Get("summary:lock:1")
	assert.Equal(t, "someone-else", got)
}

func TestRedisChatLocker_BackendDown(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()

	_, ok, err := NewRedisChatLocker(client, time.Minute).TryLock(context.Background(), 1)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestLocalChatLocker(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalChatLocker()

	unlock, ok, err := locker.TryLock(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = locker.TryLock(ctx, 1)
	assert.False(t, ok)

	_, ok, _ = locker.TryLock(ctx, 2)
	assert.True(t, ok)

	unlock()
	unlock() // 重复释放无副作用
	_, ok, _ = locker.TryLock(ctx, 1)
	assert.True(t, ok)
}
