package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Actor   string `json:"actor"`
	Machine string `json:"machine"`
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute, time.Minute)

	var got entry
	assert.True(t, errors.Is(c.Get(ctx, "k", &got), ErrMiss))

	in := entry{Actor: "0x01", Machine: "0x02"}
	require.NoError(t, c.Set(ctx, "k", in, 0))
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, in, got)

	// 修改读出的值不影响缓存内容
	got.Machine = "0xff"
	var again entry
	require.NoError(t, c.Get(ctx, "k", &again))
	assert.Equal(t, "0x02", again.Machine)

	require.NoError(t, c.Delete(ctx, "k"))
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrMiss)
}

func TestMultiLevelCache_BackfillsLocal(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)

	local := NewMemoryCache(time.Minute, time.Minute)
	remote := NewRedisCache(client, "test:")
	m := NewMultiLevelCache(local, remote)

	in := entry{Actor: "0x01", Machine: "0x02"}
	// 只写 L2，模拟其他实例写入
	require.NoError(t, remote.Set(ctx, "k", in, time.Hour))

	var got entry
	require.NoError(t, m.Get(ctx, "k", &got))
	assert.Equal(t, in, got)

	// L2 命中后回写 L1
	var l1 entry
	require.NoError(t, local.Get(ctx, "k", &l1))
	assert.Equal(t, in, l1)

	require.NoError(t, m.Delete(ctx, "k"))
	assert.ErrorIs(t, m.Get(ctx, "k", &got), ErrMiss)
}
