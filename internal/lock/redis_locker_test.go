package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, "merge:"), mr
}

func TestRedisLocker_LockUnlock(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "guild-1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("merge:lock:guild-1"))

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("merge:lock:guild-1"))
}

func TestRedisLocker_Contention(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "guild-1", 5*time.Second)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(short, "guild-1", 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// other guilds are independent
	other, err := locker.Lock(ctx, "guild-2", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, unlock(ctx))
	again, err := locker.Lock(ctx, "guild-1", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestRedisLocker_StaleUnlockKeepsNewOwner(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "guild-1", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	require.False(t, mr.Exists("merge:lock:guild-1"))

	unlockNew, err := locker.Lock(ctx, "guild-1", 5*time.Second)
	require.NoError(t, err)

	require.NoError(t, unlock(ctx))
	assert.True(t, mr.Exists("merge:lock:guild-1"), "expired holder must not release the new owner's lock")

	require.NoError(t, unlockNew(ctx))
}
