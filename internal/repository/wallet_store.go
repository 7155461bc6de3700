package repository

import (
	"context"

	"playerwallet/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormWalletStore 基于 MySQL 事务 + SELECT ... FOR UPDATE 的钱包存储
type GormWalletStore struct {
	db        *gorm.DB
	players   *PlayerRepository
	histories *HistoryRepository
	outbox    *OutboxRepository
}

func NewWalletStore(db *gorm.DB) *GormWalletStore {
	return &GormWalletStore{
		db:        db,
		players:   NewPlayerRepository(db),
		histories: NewHistoryRepository(db),
		outbox:    NewOutboxRepository(db),
	}
}

func (s *GormWalletStore) FindWallet(ctx context.Context, playerID int64) (*model.Player, error) {
	return s.players.GetByID(ctx, playerID)
}

// Atomic 所有写操作共用同一个 *gorm.DB 事务，fn 出错或 panic 时整体回滚
func (s *GormWalletStore) Atomic(ctx context.Context, fn func(tx WalletTx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormWalletTx{store: s, tx: tx})
	})
	return translate(err)
}

type gormWalletTx struct {
	store *GormWalletStore
	tx    *gorm.DB
}

func (t *gormWalletTx) LockWallet(ctx context.Context, playerID int64) (*model.Player, error) {
	return t.store.players.GetByIDForUpdate(ctx, t.tx, playerID)
}

func (t *gormWalletTx) AppendHistory(ctx context.Context, entry *model.History) error {
	return t.store.histories.Create(ctx, t.tx, entry)
}

func (t *gormWalletTx) SaveWallet(ctx context.Context, playerID int64, credit, cashInLimit decimal.Decimal) error {
	return t.store.players.UpdateWallet(ctx, t.tx, playerID, credit, cashInLimit)
}

func (t *gormWalletTx) Enqueue(ctx context.Context, msg *model.OutboxMessage) error {
	return t.store.outbox.Create(ctx, t.tx, msg)
}

var (
	_ WalletStore     = (*GormWalletStore)(nil)
	_ HistoryStore    = (*HistoryRepository)(nil)
	_ PlayerStore     = (*PlayerRepository)(nil)
	_ ResetTokenStore = (*ResetTokenRepository)(nil)
	_ MessageStore    = (*MessageRepository)(nil)
	_ OutboxStore     = (*OutboxRepository)(nil)
)
