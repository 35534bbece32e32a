package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lingotutor/cache"
	"lingotutor/logger"
	"lingotutor/models"
	"lingotutor/storage"
)

type ThreadService struct {
	db    *gorm.DB
	store cache.Store
	blobs storage.BlobStore
	log   *logger.Logger
	now   func() time.Time
}

// NewThreadService accepts a nil blobs when object storage is not configured.
func NewThreadService(db *gorm.DB, store cache.Store, blobs storage.BlobStore, log *logger.Logger) *ThreadService {
	return &ThreadService{
		db:    db,
		store: store,
		blobs: blobs,
		log:   log.With("service", "ThreadService"),
		now:   time.Now,
	}
}

// List returns the user's threads, most recently updated first.
func (s *ThreadService) List(ctx context.Context, userID uuid.UUID) ([]models.ChatThread, error) {
	return cache.Load(ctx, s.store, cache.ThreadsKey(userID), cache.DefaultTTL, func(ctx context.Context) ([]models.ChatThread, error) {
		threads := []models.ChatThread{}
		err := s.db.WithContext(ctx).
			Where("user_id = ?", userID).
			Order("updated_at DESC").
			Find(&threads).Error
		return threads, err
	})
}

func (s *ThreadService) Get(ctx context.Context, userID, threadID uuid.UUID) (*models.ChatThread, error) {
	var thread models.ChatThread
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", threadID, userID).First(&thread).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &thread, nil
}

func (s *ThreadService) Create(ctx context.Context, userID uuid.UUID) (*models.ChatThread, error) {
	now := s.now()
	thread := models.ChatThread{
		UserID:    userID,
		Name:      models.DefaultThreadName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&thread).Error; err != nil {
		return nil, err
	}
	s.invalidate(ctx, cache.ThreadsKey(userID))
	return &thread, nil
}

// Rename rejects blank names and leaves the stored name as it was.
func (s *ThreadService) Rename(ctx context.Context, userID, threadID uuid.UUID, name string) (*models.ChatThread, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	thread, err := s.Get(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.db.WithContext(ctx).Model(thread).Updates(map[string]interface{}{
		"name":       name,
		"updated_at": now,
	}).Error; err != nil {
		return nil, err
	}
	thread.Name = name
	thread.UpdatedAt = now

	s.invalidate(ctx, cache.ThreadsKey(userID))
	return thread, nil
}

// Delete removes the thread together with its messages and their stored
// audio.
func (s *ThreadService) Delete(ctx context.Context, userID, threadID uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", threadID, userID).Delete(&models.ChatThread{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("thread_id = ?", threadID).Delete(&models.ChatMessage{}).Error
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, cache.ThreadsKey(userID))
	s.invalidate(ctx, cache.MessagesKey(userID, threadID))

	if s.blobs != nil {
		if err := s.blobs.DeletePrefix(ctx, storage.AudioPrefix(threadID)); err != nil {
			s.log.Warn("Deleting thread audio failed", "thread_id", threadID, "error", err)
		}
	}
	return nil
}

// touch bumps updated_at so the thread moves to the top of the list.
func (s *ThreadService) touch(tx *gorm.DB, threadID uuid.UUID, at time.Time) error {
	return tx.Model(&models.ChatThread{}).Where("id = ?", threadID).Update("updated_at", at).Error
}

func (s *ThreadService) invalidate(ctx context.Context, key string) {
	if err := s.store.Invalidate(ctx, key); err != nil {
		s.log.Warn("Cache invalidation failed", "key", key, "error", err)
	}
}
