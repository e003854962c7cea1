package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"station-core/internal/event"
	"station-core/internal/service/mq"
	"station-core/internal/station"
	"station-core/pkg/logger"
)

// LocalCache 只写本实例的 L1，*cache.MultiLevelCache 满足该接口
type LocalCache interface {
	SetLocal(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// RegistrySyncService 消费登记事件，把其他实例完成的登记写入本地缓存
type RegistrySyncService struct {
	consumer mq.Consumer
	cache    LocalCache
	ttl      time.Duration
}

func NewRegistrySyncService(consumer mq.Consumer, cache LocalCache) *RegistrySyncService {
	return &RegistrySyncService{
		consumer: consumer,
		cache:    cache,
		ttl:      10 * time.Minute,
	}
}

// Start 阻塞直到 ctx 结束
func (s *RegistrySyncService) Start(ctx context.Context) error {
	return s.consumer.Subscribe(ctx, event.TopicRegistration, func(msg *mq.Message) error {
		return s.Handle(ctx, msg)
	})
}

// Handle 处理一条登记事件
func (s *RegistrySyncService) Handle(ctx context.Context, msg *mq.Message) error {
	var ev event.AccountRegisteredEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		// 格式错误的消息重试也不会成功，直接丢弃
		logger.Warn("登记事件格式错误", zap.String("id", msg.ID), zap.Error(err))
		return nil
	}
	if !common.IsHexAddress(ev.Actor) || !common.IsHexAddress(ev.Machine) {
		logger.Warn("登记事件地址非法", zap.String("id", msg.ID), zap.String("actor", ev.Actor))
		return nil
	}

	acc := station.Account{
		Actor:   common.HexToAddress(ev.Actor),
		Machine: common.HexToAddress(ev.Machine),
		TxHash:  common.HexToHash(ev.TxHash),
	}
	if err := s.cache.SetLocal(ctx, station.RegistrationKey(acc.Actor), acc, s.ttl); err != nil {
		return fmt.Errorf("写本地缓存失败: %w", err)
	}
	logger.Debug("同步登记", zap.String("actor", ev.Actor), zap.String("machine", ev.Machine))
	return nil
}
