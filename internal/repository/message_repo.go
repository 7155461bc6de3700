package repository

import (
	"context"
	"errors"

	"playerwallet/internal/model"

	"gorm.io/gorm"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// ListForPlayer 玩家自己的消息 + 广播消息
func (r *MessageRepository) ListForPlayer(ctx context.Context, playerID int64) ([]*model.Message, error) {
	messages := make([]*model.Message, 0)
	err := r.db.WithContext(ctx).
		Where("(player_id = ? OR `all` = ?)", playerID, true).
		Order("created_at DESC").
		Find(&messages).Error
	return messages, err
}

func (r *MessageRepository) Get(ctx context.Context, id int64) (*model.Message, error) {
	var msg model.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, translate(err)
	}
	return &msg, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("id = ?", id).
		Update("read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// Delete 软删除
func (r *MessageRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Message{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}
