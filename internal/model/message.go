package model

import (
	"time"

	"gorm.io/gorm"
)

// Message 消息中心条目；All 为 true 时是广播消息
type Message struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	PlayerID  *int64         `gorm:"index" json:"player_id"`
	Message   string         `gorm:"type:text;not null" json:"message"`
	All       bool           `gorm:"column:all;not null;default:false" json:"all"`
	Read      bool           `gorm:"column:read;not null;default:false" json:"read"`
	CreatedBy string         `gorm:"type:varchar(64);not null;default:''" json:"created_by"`
	UpdatedBy string         `gorm:"type:varchar(64);not null;default:''" json:"updated_by"`
	CreatedAt time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

func (Message) TableName() string {
	return "message_centers"
}
