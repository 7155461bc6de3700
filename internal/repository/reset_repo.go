package repository

import (
	"context"
	"errors"
	"time"

	"playerwallet/internal/model"

	"gorm.io/gorm"
)

type ResetTokenRepository struct {
	db *gorm.DB
}

func NewResetTokenRepository(db *gorm.DB) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

// Replace 删除该邮箱的旧令牌后写入新令牌，同一邮箱只保留一个有效令牌
func (r *ResetTokenRepository) Replace(ctx context.Context, email, token string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email = ?", email).Delete(&model.PasswordReset{}).Error; err != nil {
			return err
		}
		return tx.Create(&model.PasswordReset{Email: email, Token: token}).Error
	})
}

func (r *ResetTokenRepository) Find(ctx context.Context, email, token string) (*model.PasswordReset, error) {
	var reset model.PasswordReset
	err := r.db.WithContext(ctx).
		Where("email = ? AND token = ?", email, token).
		First(&reset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResetTokenNotFound
		}
		return nil, err
	}
	return &reset, nil
}

func (r *ResetTokenRepository) DeleteByEmail(ctx context.Context, email string) error {
	return r.db.WithContext(ctx).Where("email = ?", email).Delete(&model.PasswordReset{}).Error
}

func (r *ResetTokenRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&model.PasswordReset{})
	return result.RowsAffected, result.Error
}
