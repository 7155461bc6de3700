package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ============================================================================
// 交易类型常量
// ============================================================================

const (
	TransactionTypeCashIn  = "CASH_IN"  // 入金
	TransactionTypeCashOut = "CASH_OUT" // 出金
)

const (
	HistoryStatusActive = 1
)

// IsValidTransactionType reports whether t is CASH_IN or CASH_OUT.
func IsValidTransactionType(t string) bool {
	return t == TransactionTypeCashIn || t == TransactionTypeCashOut
}

// ============================================================================
// 钱包流水实体
// ============================================================================

// History 钱包流水表
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改 —— 删除只允许软删除
// 2. Balance 是写入时的余额快照，不重新计算
// 3. 同一玩家按 created_at 排序后满足 balance[n] = balance[n-1] ± amount[n]
type History struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PlayerID        int64           `gorm:"index:idx_histories_player_created,priority:1;not null" json:"player_id"`
	TransactionCode string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_code"`
	Type            string          `gorm:"type:varchar(20);not null" json:"type"`
	Channel         string          `gorm:"type:varchar(64);not null" json:"channel"`
	Amount          decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Status          int             `gorm:"not null;default:1" json:"status"`
	Balance         decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"balance"`
	CreatedBy       string          `gorm:"type:varchar(64);not null;default:''" json:"created_by"`
	UpdatedBy       string          `gorm:"type:varchar(64);not null;default:''" json:"updated_by"`
	CreatedAt       time.Time       `gorm:"autoCreateTime;index:idx_histories_player_created,priority:2" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt  `gorm:"index" json:"deleted_at"`

	Player *Player `gorm:"foreignKey:PlayerID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
}

func (History) TableName() string {
	return "histories"
}

// Signed 返回带方向的金额：入金为正，出金为负
func (h *History) Signed() decimal.Decimal {
	if h.Type == TransactionTypeCashOut {
		return h.Amount.Neg()
	}
	return h.Amount
}
