package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lingotutor/cache"
	"lingotutor/logger"
	"lingotutor/models"
)

type MessageService struct {
	db      *gorm.DB
	store   cache.Store
	threads *ThreadService
	log     *logger.Logger
	now     func() time.Time
}

func NewMessageService(db *gorm.DB, store cache.Store, threads *ThreadService, log *logger.Logger) *MessageService {
	return &MessageService{
		db:      db,
		store:   store,
		threads: threads,
		log:     log.With("service", "MessageService"),
		now:     time.Now,
	}
}

// List returns the thread's messages oldest first. An unset thread id yields
// an empty history rather than an error.
func (s *MessageService) List(ctx context.Context, userID, threadID uuid.UUID) ([]models.ChatMessage, error) {
	if threadID == uuid.Nil {
		return []models.ChatMessage{}, nil
	}
	if _, err := s.threads.Get(ctx, userID, threadID); err != nil {
		return nil, err
	}
	return cache.Load(ctx, s.store, cache.MessagesKey(userID, threadID), cache.DefaultTTL, func(ctx context.Context) ([]models.ChatMessage, error) {
		messages := []models.ChatMessage{}
		err := s.db.WithContext(ctx).
			Where("thread_id = ?", threadID).
			Order("created_at ASC").
			Find(&messages).Error
		return messages, err
	})
}

// Recent returns at most n of the newest messages, oldest first.
func (s *MessageService) Recent(ctx context.Context, userID, threadID uuid.UUID, n int) ([]models.ChatMessage, error) {
	messages, err := s.List(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(messages) > n {
		messages = messages[len(messages)-n:]
	}
	return messages, nil
}

func (s *MessageService) Append(ctx context.Context, userID, threadID uuid.UUID, content string, isUser bool, audioURL *string) (*models.ChatMessage, error) {
	if threadID == uuid.Nil {
		return nil, ErrNoThread
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrInvalidInput
	}
	if _, err := s.threads.Get(ctx, userID, threadID); err != nil {
		return nil, err
	}

	now := s.now()
	msg := models.ChatMessage{
		ThreadID:  threadID,
		Content:   content,
		IsUser:    isUser,
		AudioURL:  audioURL,
		CreatedAt: now,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		return s.threads.touch(tx, threadID, now)
	})
	if err != nil {
		return nil, err
	}

	s.threads.invalidate(ctx, cache.MessagesKey(userID, threadID))
	s.threads.invalidate(ctx, cache.ThreadsKey(userID))
	return &msg, nil
}
