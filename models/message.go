package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChatMessage struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	ThreadID  uuid.UUID `json:"thread_id" gorm:"type:uuid;not null;index:idx_chat_messages_thread_created,priority:1"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	IsUser    bool      `json:"is_user" gorm:"not null"`
	AudioURL  *string   `json:"audio_url,omitempty"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_chat_messages_thread_created,priority:2"`
}

func (ChatMessage) TableName() string { return "chat_messages" }

func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
