package model

import (
	"time"

	"gorm.io/gorm"
)

// 登记状态
const (
	RegistrationPending    = "PENDING"    // 部署交易已广播但未确认
	RegistrationConfirmed  = "CONFIRMED"  // 已取得智能账户地址
	RegistrationFailed     = "FAILED"
	RegistrationUnresolved = "UNRESOLVED" // 回执中没有部署事件，需人工处理，不再自动部署
)

// Registration actor EOA -> 智能账户
// 唯一索引保证一个 actor 只登记一次
type Registration struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Actor     string         `gorm:"type:varchar(42);not null;uniqueIndex" json:"actor"`
	Machine   string         `gorm:"type:varchar(42);index" json:"machine"` // PENDING 时为空
	TxHash    string         `gorm:"type:varchar(66);not null;index" json:"tx_hash"`
	State     string         `gorm:"type:varchar(20);not null;default:'PENDING'" json:"state"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Registration) TableName() string {
	return "registrations"
}

// 未决交易状态
const (
	TxPending   = "PENDING"
	TxConfirmed = "CONFIRMED"
	TxReverted  = "REVERTED"
)

// PendingTransaction 广播后在时限内未确认的中继交易，由对账任务回查
type PendingTransaction struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	TxHash      string    `gorm:"type:varchar(66);not null;uniqueIndex" json:"tx_hash"`
	Kind        string    `gorm:"type:varchar(64);not null" json:"kind"`
	Actor       string    `gorm:"type:varchar(42)" json:"actor"` // 仅部署交易
	Fingerprint string    `gorm:"type:varchar(64);not null;index" json:"fingerprint"`
	Status      string    `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	Reason      string    `gorm:"type:text" json:"reason"`
	Attempts    int       `gorm:"not null;default:0" json:"attempts"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (PendingTransaction) TableName() string {
	return "pending_transactions"
}

// OutboxMessage 本地消息表 (Transactional Outbox)
type OutboxMessage struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Topic     string         `gorm:"type:varchar(255);not null" json:"topic"`
	Key       string         `gorm:"type:varchar(255)" json:"key"`
	Payload   []byte         `gorm:"type:text;not null" json:"payload"`
	Status    string         `gorm:"type:varchar(50);not null;default:'PENDING';index" json:"status"` // PENDING, SENT
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}

// AllModels 迁移和测试建表使用
func AllModels() []any {
	return []any{&Registration{}, &PendingTransaction{}, &OutboxMessage{}}
}
