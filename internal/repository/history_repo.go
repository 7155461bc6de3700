package repository

import (
	"context"
	"errors"

	"playerwallet/internal/model"

	"gorm.io/gorm"
)

type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.History) error {
	if tx == nil {
		tx = r.db
	}
	return translate(tx.WithContext(ctx).Create(entry).Error)
}

// ListByPlayerID 按创建时间倒序，软删除的流水不返回
func (r *HistoryRepository) ListByPlayerID(ctx context.Context, playerID int64) ([]*model.History, error) {
	histories := make([]*model.History, 0)
	err := r.db.WithContext(ctx).
		Where("player_id = ?", playerID).
		Order("created_at DESC, id DESC").
		Find(&histories).Error
	if err != nil {
		return nil, translate(err)
	}
	return histories, nil
}

func (r *HistoryRepository) GetByCode(ctx context.Context, transactionCode string) (*model.History, error) {
	var entry model.History
	err := r.db.WithContext(ctx).Where("transaction_code = ?", transactionCode).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHistoryNotFound
		}
		return nil, translate(err)
	}
	return &entry, nil
}
