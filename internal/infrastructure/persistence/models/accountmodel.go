package models

import (
	"time"
)

// AccountModel is the GORM model for the accounts table
type AccountModel struct {
	ID             string    `gorm:"column:id;type:varchar(50);primaryKey"`
	Username       string    `gorm:"column:username;type:varchar(100);not null;uniqueIndex"`
	DisplayName    string    `gorm:"column:display_name;type:varchar(100);not null"`
	NotifyEnabled  bool      `gorm:"column:notify_enabled;not null;default:false"`
	TelegramChatID int64     `gorm:"column:telegram_chat_id;not null;default:0;index"`
	Active         bool      `gorm:"column:active;not null;default:true"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the table name for GORM
func (AccountModel) TableName() string {
	return "accounts"
}
