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

func TestRedisLock(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	a := NewRedisLock(client)
	b := NewRedisLock(client)

	ok, err := a.Acquire(ctx, "register:0x01", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// 其他实例拿不到锁
	ok, err = b.Acquire(ctx, "register:0x01", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// 非持有者释放无效
	require.NoError(t, b.Release(ctx, "register:0x01"))
	assert.True(t, mr.Exists("lock:register:0x01"))

	require.NoError(t, a.Release(ctx, "register:0x01"))
	ok, err = b.Acquire(ctx, "register:0x01", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_Expires(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	a := NewRedisLock(client)
	ok, _ := a.Acquire(ctx, "k", time.Second)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err := NewRedisLock(client).Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
