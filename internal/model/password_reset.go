package model

import "time"

type PasswordReset struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email     string    `gorm:"type:varchar(191);index;not null" json:"email"`
	Token     string    `gorm:"type:varchar(16);not null" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (PasswordReset) TableName() string {
	return "password_resets"
}

// Expired reports whether the token is older than ttl at now.
func (r *PasswordReset) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.CreatedAt) > ttl
}
