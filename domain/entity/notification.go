package entity

import "time"

// Notification 站内通知
type Notification struct {
	ID        string    `gorm:"primaryKey;size:64"`
	UserID    string    `gorm:"size:64;index"`
	Title     string    `gorm:"size:200"`
	Body      string    `gorm:"size:1000"`
	Tag       string    `gorm:"size:128"` // 去重键，例如 board:<id>
	IsRead    bool      `gorm:"default:false;index"`
	CreatedAt time.Time `gorm:"index"`
}
