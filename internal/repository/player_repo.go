package repository

import (
	"context"
	"errors"
	"time"

	"playerwallet/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PlayerRepository struct {
	db *gorm.DB
}

func NewPlayerRepository(db *gorm.DB) *PlayerRepository {
	return &PlayerRepository{db: db}
}

func (r *PlayerRepository) Create(ctx context.Context, player *model.Player) error {
	return translate(r.db.WithContext(ctx).Create(player).Error)
}

func (r *PlayerRepository) first(ctx context.Context, query *gorm.DB) (*model.Player, error) {
	var player model.Player
	err := query.WithContext(ctx).First(&player).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlayerNotFound
		}
		return nil, translate(err)
	}
	return &player, nil
}

func (r *PlayerRepository) GetByID(ctx context.Context, id int64) (*model.Player, error) {
	return r.first(ctx, r.db.Where("id = ?", id))
}

// GetByIDForUpdate 行级排他锁，必须在事务内调用
func (r *PlayerRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Player, error) {
	return r.first(ctx, tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

func (r *PlayerRepository) GetByEmail(ctx context.Context, email string) (*model.Player, error) {
	return r.first(ctx, r.db.Where("email = ?", email))
}

func (r *PlayerRepository) GetByGoogleID(ctx context.Context, googleID string) (*model.Player, error) {
	return r.first(ctx, r.db.Where("google_id = ?", googleID))
}

func (r *PlayerRepository) GetByNameAndBirthdate(ctx context.Context, firstName, lastName string, birthdate time.Time) (*model.Player, error) {
	return r.first(ctx, r.db.Where("first_name = ? AND last_name = ? AND birthdate = ?",
		firstName, lastName, birthdate.Format("2006-01-02")))
}

// UpdateWallet 写入新的余额和入金额度
func (r *PlayerRepository) UpdateWallet(ctx context.Context, tx *gorm.DB, id int64, credit, cashInLimit decimal.Decimal) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Player{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"credit":        credit,
			"cash_in_limit": cashInLimit,
		})

	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

func (r *PlayerRepository) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Player{}).
		Where("email = ?", email).
		Update("password", passwordHash)

	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPlayerNotFound
	}
	return nil
}
