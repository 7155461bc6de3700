package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	PlayerStatusActive   = 1
	PlayerStatusDisabled = 0
)

// Player 玩家账户表
// credit / cash_in_limit 只允许钱包引擎在事务内修改
type Player struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Code        string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	FirstName   string          `gorm:"type:varchar(100);not null;default:''" json:"first_name"`
	MiddleName  string          `gorm:"type:varchar(100);not null;default:''" json:"middle_name"`
	LastName    string          `gorm:"type:varchar(100);not null;default:''" json:"last_name"`
	Email       string          `gorm:"type:varchar(191);uniqueIndex;not null" json:"email"`
	Birthdate   *time.Time      `gorm:"type:date" json:"birthdate"`
	Password    *string         `gorm:"type:varchar(255)" json:"-"`
	GoogleID    *string         `gorm:"type:varchar(64);uniqueIndex" json:"google_id,omitempty"`
	Credit      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"credit"`
	CashInLimit decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0" json:"cash_in_limit"`
	Status      int             `gorm:"not null;default:1" json:"status"`
	LoginStatus int             `gorm:"not null;default:0" json:"login_status"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (Player) TableName() string {
	return "players"
}

// FullName 返回 "名 姓"，两者都为空时返回邮箱
func (p *Player) FullName() string {
	name := p.FirstName
	if p.LastName != "" {
		if name != "" {
			name += " "
		}
		name += p.LastName
	}
	if name == "" {
		return p.Email
	}
	return name
}

// HasPassword 谷歌注册的玩家没有密码
func (p *Player) HasPassword() bool {
	return p.Password != nil && *p.Password != ""
}
