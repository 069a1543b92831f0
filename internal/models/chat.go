package models

import (
	"time"

	"gorm.io/gorm"
)

// Sender tags who authored a chat entry
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// ChatEntry is one line of assistant conversation history
type ChatEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index:idx_chat_user_time" json:"user_id"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Sender    Sender    `gorm:"size:10;not null" json:"sender"`
	Timestamp time.Time `gorm:"not null;index:idx_chat_user_time" json:"timestamp"`
}

// BeforeCreate hook is called before creating a new chat entry
func (c *ChatEntry) BeforeCreate(tx *gorm.DB) error {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}
	return nil
}

// TableName specifies the table name for the ChatEntry model
func (ChatEntry) TableName() string {
	return "chat_history"
}
