package model

import (
	"time"
)

type Session struct {
	ID         string    `gorm:"size:64;primaryKey"`
	ProviderID string    `gorm:"size:128;index"`
	EmbedURL   string    `gorm:"size:1024;not null"`
	Active     bool      `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

type Room struct {
	Code      string    `gorm:"size:16;primaryKey"`
	SessionID string    `gorm:"size:64;index;not null"`
	Label     string    `gorm:"size:255"`
	CreatedAt time.Time `gorm:"not null"`
}

// Event rows double as the log cursor: the autoincrement primary key is the
// per-room ordering clients poll against.
type Event struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	RoomCode  string    `gorm:"size:16;index;not null"`
	Nonce     string    `gorm:"size:64"`
	Payload   []byte    `gorm:"type:jsonb;not null"`
	CreatedAt time.Time `gorm:"not null"`
}
