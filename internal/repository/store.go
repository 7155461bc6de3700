package repository

import (
	"context"
	"errors"
	"time"

	"playerwallet/internal/model"

	"github.com/shopspring/decimal"
)

var (
	ErrPlayerNotFound     = errors.New("player not found")
	ErrHistoryNotFound    = errors.New("transaction not found")
	ErrMessageNotFound    = errors.New("message not found")
	ErrResetTokenNotFound = errors.New("reset token not found")

	// ErrConflict 唯一键冲突、锁等待超时、死锁，调用方可以有限次重试
	ErrConflict = errors.New("concurrent modification conflict")
	// ErrTimeout 事务在截止时间内没有完成，已整体回滚
	ErrTimeout = errors.New("transaction timed out")
)

// WalletStore 钱包引擎依赖的存储
//
// Atomic 开启一个事务作用域：fn 返回 nil 时提交，返回错误或 panic 时回滚。
// 同一玩家的 LockWallet 在事务结束前互斥，不同玩家互不阻塞。
type WalletStore interface {
	FindWallet(ctx context.Context, playerID int64) (*model.Player, error)
	Atomic(ctx context.Context, fn func(tx WalletTx) error) error
}

// WalletTx 事务内可用的操作
type WalletTx interface {
	LockWallet(ctx context.Context, playerID int64) (*model.Player, error)
	AppendHistory(ctx context.Context, entry *model.History) error
	SaveWallet(ctx context.Context, playerID int64, credit, cashInLimit decimal.Decimal) error
	Enqueue(ctx context.Context, msg *model.OutboxMessage) error
}

// HistoryStore 流水只读查询
type HistoryStore interface {
	ListByPlayerID(ctx context.Context, playerID int64) ([]*model.History, error)
	GetByCode(ctx context.Context, transactionCode string) (*model.History, error)
}

// PlayerStore 玩家资料（认证子系统使用）
type PlayerStore interface {
	Create(ctx context.Context, player *model.Player) error
	GetByID(ctx context.Context, id int64) (*model.Player, error)
	GetByEmail(ctx context.Context, email string) (*model.Player, error)
	GetByGoogleID(ctx context.Context, googleID string) (*model.Player, error)
	GetByNameAndBirthdate(ctx context.Context, firstName, lastName string, birthdate time.Time) (*model.Player, error)
	UpdatePassword(ctx context.Context, email, passwordHash string) error
}

// OutboxStore OutboxSender 使用
type OutboxStore interface {
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	MarkSent(ctx context.Context, id int64) error
	IncrementRetryCount(ctx context.Context, id int64) error
	MarkAsFailed(ctx context.Context, id int64) error
}

// MessageStore 消息中心
type MessageStore interface {
	ListForPlayer(ctx context.Context, playerID int64) ([]*model.Message, error)
	Get(ctx context.Context, id int64) (*model.Message, error)
	MarkRead(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

// ResetTokenStore 密码重置令牌
type ResetTokenStore interface {
	Replace(ctx context.Context, email, token string) error
	Find(ctx context.Context, email, token string) (*model.PasswordReset, error)
	DeleteByEmail(ctx context.Context, email string) error
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
