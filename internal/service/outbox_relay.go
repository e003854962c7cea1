package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"station-core/internal/model"
	"station-core/internal/service/mq"
	"station-core/pkg/logger"
)

// OutboxStore outbox 表读写，*store.Store 满足该接口
type OutboxStore interface {
	PendingOutbox(ctx context.Context, limit int) ([]model.OutboxMessage, error)
	MarkSent(ctx context.Context, id uint64) error
}

// OutboxRelayService 负责将本地消息表的消息搬运到 MQ
type OutboxRelayService struct {
	store    OutboxStore
	producer mq.Producer
	interval time.Duration
	batch    int
}

func NewOutboxRelayService(store OutboxStore, producer mq.Producer) *OutboxRelayService {
	return &OutboxRelayService{
		store:    store,
		producer: producer,
		interval: 500 * time.Millisecond, // 500ms 轮询一次
		batch:    50,
	}
}

func (s *OutboxRelayService) Start(ctx context.Context) {
	logger.Info("启动消息中继服务")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("消息中继服务停止")
			return
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

// ProcessPending 投递一批 PENDING 消息，返回成功投递的数量
func (s *OutboxRelayService) ProcessPending(ctx context.Context) int {
	// 1. 获取一批 Pending 消息
	messages, err := s.store.PendingOutbox(ctx, s.batch)
	if err != nil {
		logger.Error("查询 outbox 失败", zap.Error(err))
		return 0
	}
	if len(messages) == 0 {
		return 0
	}

	sent := 0
	for _, msg := range messages {
		// 2. 发送 MQ，Key 为 actor 地址
		if err := s.producer.Publish(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
			logger.Warn("投递消息失败", zap.Uint64("id", msg.ID), zap.Error(err))
			continue
		}

		// 3. 发送成功后才标记 SENT，至少一次投递，消费方需幂等
		if err := s.store.MarkSent(ctx, msg.ID); err != nil {
			logger.Warn("更新 outbox 状态失败", zap.Uint64("id", msg.ID), zap.Error(err))
			continue
		}
		sent++
	}
	logger.Debug("outbox 投递完成", zap.Int("found", len(messages)), zap.Int("sent", sent))
	return sent
}
