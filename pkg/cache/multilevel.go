package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"station-core/pkg/logger"
)

// MultiLevelCache 实现多级缓存 (L1: Memory, L2: Redis)
type MultiLevelCache struct {
	local  Cache
	remote Cache
}

func NewMultiLevelCache(local, remote Cache) *MultiLevelCache {
	return &MultiLevelCache{
		local:  local,
		remote: remote,
	}
}

func (m *MultiLevelCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	// L1 的 TTL 为 L2 的一半; ttl<=0 表示永不过期
	if err := m.local.Set(ctx, key, value, ttl/2); err != nil {
		logger.Warn("L1 缓存写入失败", zap.String("key", key), zap.Error(err))
	}
	return m.remote.Set(ctx, key, value, ttl)
}

func (m *MultiLevelCache) Get(ctx context.Context, key string, target interface{}) error {
	// 1. 查 L1
	if err := m.local.Get(ctx, key, target); err == nil {
		return nil
	}

	// 2. 查 L2
	err := m.remote.Get(ctx, key, target)
	if err != nil {
		return err
	}

	// L2 Hit -> 回写 L1, TTL 较短，防止 L1 脏数据太久
	_ = m.local.Set(ctx, key, target, time.Minute)
	return nil
}

// SetLocal 只写 L1，用于接收其他实例广播的变更
func (m *MultiLevelCache) SetLocal(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return m.local.Set(ctx, key, value, ttl)
}

func (m *MultiLevelCache) Delete(ctx context.Context, key string) error {
	_ = m.local.Delete(ctx, key)
	return m.remote.Delete(ctx, key)
}
