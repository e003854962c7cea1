// Package store 登记信息、未决交易与 outbox 的持久化
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"station-core/internal/event"
	"station-core/internal/model"
)

var ErrNotFound = errors.New("record not found")

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FindByActor 按 actor EOA 查询登记
func (s *Store) FindByActor(ctx context.Context, actor common.Address) (*model.Registration, error) {
	var r model.Registration
	err := s.db.WithContext(ctx).Where("actor = ?", actor.Hex()).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// FindByMachine 按智能账户地址查询已确认的登记
func (s *Store) FindByMachine(ctx context.Context, machine common.Address) (*model.Registration, error) {
	var r model.Registration
	err := s.db.WithContext(ctx).
		Where("machine = ? AND state = ?", machine.Hex(), model.RegistrationConfirmed).
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SavePending 记录已广播但未确认的部署
func (s *Store) SavePending(ctx context.Context, actor common.Address, txHash common.Hash) error {
	r := model.Registration{
		Actor:  actor.Hex(),
		TxHash: txHash.Hex(),
		State:  model.RegistrationPending,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "actor"}},
		DoUpdates: clause.AssignmentColumns([]string{"tx_hash", "state", "updated_at"}),
	}).Create(&r).Error
}

// Confirm 写入智能账户地址并在同一事务中写 outbox 事件
func (s *Store) Confirm(ctx context.Context, actor, machine common.Address, txHash common.Hash) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. upsert 登记
		r := model.Registration{
			Actor:   actor.Hex(),
			Machine: machine.Hex(),
			TxHash:  txHash.Hex(),
			State:   model.RegistrationConfirmed,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "actor"}},
			DoUpdates: clause.AssignmentColumns([]string{"machine", "tx_hash", "state", "updated_at"}),
		}).Create(&r).Error
		if err != nil {
			return err
		}

		// 2. 写 outbox
		payload, err := json.Marshal(event.AccountRegisteredEvent{
			Actor:   r.Actor,
			Machine: r.Machine,
			TxHash:  r.TxHash,
		})
		if err != nil {
			return err
		}
		return tx.Create(&model.OutboxMessage{
			Topic:   event.TopicRegistration,
			Key:     r.Actor,
			Payload: payload,
			Status:  "PENDING",
		}).Error
	})
}

// MarkFailed 部署交易被 revert 后清除 PENDING 登记，允许重新注册
func (s *Store) MarkFailed(ctx context.Context, actor common.Address) error {
	return s.db.WithContext(ctx).
		Model(&model.Registration{}).
		Where("actor = ? AND state = ?", actor.Hex(), model.RegistrationPending).
		Update("state", model.RegistrationFailed).Error
}

// MarkUnresolved 部署缺少事件，登记转为 UNRESOLVED，已确认的登记不受影响
func (s *Store) MarkUnresolved(ctx context.Context, actor common.Address, txHash common.Hash) error {
	r := model.Registration{
		Actor:  actor.Hex(),
		TxHash: txHash.Hex(),
		State:  model.RegistrationUnresolved,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "actor"}},
		DoUpdates: clause.AssignmentColumns([]string{"tx_hash", "state", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Neq{Column: clause.Column{Table: "registrations", Name: "state"}, Value: model.RegistrationConfirmed},
		}},
	}).Create(&r).Error
}

// RecordPending 记录需要回查的交易，同一哈希只记一次
func (s *Store) RecordPending(ctx context.Context, p *model.PendingTransaction) error {
	if p.Status == "" {
		p.Status = model.TxPending
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(p).Error
}

// FindPending 按哈希查询
func (s *Store) FindPending(ctx context.Context, txHash common.Hash) (*model.PendingTransaction, error) {
	var p model.PendingTransaction
	err := s.db.WithContext(ctx).Where("tx_hash = ?", txHash.Hex()).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPending 取一批仍未决的交易，按创建顺序
func (s *Store) ListPending(ctx context.Context, limit int) ([]model.PendingTransaction, error) {
	var out []model.PendingTransaction
	err := s.db.WithContext(ctx).
		Where("status = ?", model.TxPending).
		Order("id").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountPending 未决交易数量
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.PendingTransaction{}).Where("status = ?", model.TxPending).Count(&n).Error
	return n, err
}

// ResolvePending 回查得到终态
func (s *Store) ResolvePending(ctx context.Context, txHash common.Hash, status, reason string) error {
	return s.db.WithContext(ctx).
		Model(&model.PendingTransaction{}).
		Where("tx_hash = ?", txHash.Hex()).
		Updates(map[string]any{"status": status, "reason": reason}).Error
}

// TouchPending 回查仍未决，递增尝试次数
func (s *Store) TouchPending(ctx context.Context, txHash common.Hash) error {
	return s.db.WithContext(ctx).
		Model(&model.PendingTransaction{}).
		Where("tx_hash = ?", txHash.Hex()).
		Update("attempts", gorm.Expr("attempts + 1")).Error
}

// PendingOutbox 取一批待投递的 outbox 消息
func (s *Store) PendingOutbox(ctx context.Context, limit int) ([]model.OutboxMessage, error) {
	var out []model.OutboxMessage
	err := s.db.WithContext(ctx).Where("status = ?", "PENDING").Order("id").Limit(limit).Find(&out).Error
	return out, err
}

// MarkSent outbox 消息已投递
func (s *Store) MarkSent(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Model(&model.OutboxMessage{}).Where("id = ?", id).Update("status", "SENT").Error
}
