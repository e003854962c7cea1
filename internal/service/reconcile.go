package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"station-core/pkg/logger"
	"station-core/pkg/utils/lock"
)

const reconcileLockKey = "cron:lock:reconcile_pending"

// Reconciler 未决交易回查，*station.Service 满足该接口
type Reconciler interface {
	ReconcilePending(ctx context.Context, limit int) (int, error)
}

// ReconcileService 定时回查超时未确认的中继交易
type ReconcileService struct {
	cron       *cron.Cron
	reconciler Reconciler
	locker     lock.DistributedLock // 可选: 多实例时只有一个实例执行
	schedule   string
	batch      int
	timeout    time.Duration
}

func NewReconcileService(r Reconciler, locker lock.DistributedLock) *ReconcileService {
	return &ReconcileService{
		cron:       cron.New(),
		reconciler: r,
		locker:     locker,
		schedule:   "@every 1m",
		batch:      50,
		timeout:    50 * time.Second,
	}
}

func (s *ReconcileService) Start() error {
	// 注册任务
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return err
	}
	s.cron.Start()
	logger.Info("对账任务已启动", zap.String("schedule", s.schedule))
	return nil
}

func (s *ReconcileService) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("对账任务已停止")
}

// RunOnce 执行一轮回查，返回本轮是否执行
func (s *ReconcileService) RunOnce(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// 1. 获取分布式锁，防止多实例同时执行
	if s.locker != nil {
		locked, err := s.locker.Acquire(ctx, reconcileLockKey, s.timeout)
		if err != nil || !locked {
			logger.Debug("对账: 获取锁失败或已有实例在运行")
			return false
		}
		defer func() { _ = s.locker.Release(context.Background(), reconcileLockKey) }()
	}

	// 2. 回查
	settled, err := s.reconciler.ReconcilePending(ctx, s.batch)
	if err != nil {
		logger.Error("对账失败", zap.Error(err))
		return true
	}
	if settled > 0 {
		logger.Info("对账完成", zap.Int("settled", settled))
	}
	return true
}
