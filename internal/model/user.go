package model

import "time"

// User owns templates, tasks and generation state. ExternalID is the identity
// asserted by the web layer; TelegramChatID is optional and only used by the
// daily-report notifier.
type User struct {
	ID             uint   `gorm:"primaryKey"`
	ExternalID     string `gorm:"uniqueIndex"`
	Name           string
	TelegramChatID int64 `gorm:"index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
