package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lingotutor/ai"
	"lingotutor/cache"
	"lingotutor/logger"
	"lingotutor/models"
	"lingotutor/storage"
)

type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
	Download(ctx context.Context, url string) ([]byte, string, error)
}

const (
	bannerLockTTL = 3 * time.Minute
	bannerTimeout = 2 * time.Minute
)

// BannerService fills in quiz banners in the background. At most one
// generation per quiz runs at a time across every instance sharing the store.
type BannerService struct {
	db     *gorm.DB
	store  cache.Store
	images ImageGenerator
	blobs  storage.BlobStore
	log    *logger.Logger
	wg     sync.WaitGroup
}

func NewBannerService(db *gorm.DB, store cache.Store, images ImageGenerator, blobs storage.BlobStore, log *logger.Logger) *BannerService {
	return &BannerService{
		db:     db,
		store:  store,
		images: images,
		blobs:  blobs,
		log:    log.With("service", "BannerService"),
	}
}

// Ensure starts a generation for quiz when it has no banner and none is
// already running. It reports whether a generation was started.
func (s *BannerService) Ensure(userID uuid.UUID, quiz *models.Quiz) bool {
	if quiz == nil || quiz.BannerURL != nil || s.images == nil {
		return false
	}
	ok, err := s.store.TryLock(context.Background(), cache.BannerLockKey(quiz.ID), bannerLockTTL)
	if err != nil {
		s.log.Warn("Banner lock failed", "quiz_id", quiz.ID, "error", err)
		return false
	}
	if !ok {
		return false
	}
	s.start(userID, quiz)
	return true
}

// start runs a generation for quiz. The caller holds the quiz's banner lock
// and start releases it once the generation ends.
func (s *BannerService) start(userID uuid.UUID, quiz *models.Quiz) {
	s.wg.Add(1)
	go func(quizID uuid.UUID, topic, title string) {
		defer s.wg.Done()
		s.generate(userID, quizID, topic, title)
	}(quiz.ID, quiz.Topic, quiz.Title)
}

func (s *BannerService) generate(userID, quizID uuid.UUID, topic, title string) {
	ctx, cancel := context.WithTimeout(context.Background(), bannerTimeout)
	defer cancel()
	defer s.unlock(quizID)

	url, err := s.Generate(ctx, topic, title)
	if err != nil {
		s.log.Warn("Banner generation failed", "quiz_id", quizID, "error", err)
		return
	}
	url = s.rehost(ctx, quizID, url)

	res := s.db.WithContext(ctx).Model(&models.Quiz{}).
		Where("id = ?", quizID).
		Update("banner_url", url)
	if res.Error != nil {
		s.log.Error("Saving banner failed", "quiz_id", quizID, "error", res.Error)
		return
	}
	if res.RowsAffected == 0 {
		s.log.Info("Quiz deleted during banner generation", "quiz_id", quizID)
		s.Discard(ctx, quizID)
		return
	}
	s.invalidate(ctx, cache.QuizKey(userID, quizID))
	s.invalidate(ctx, cache.QuizzesKey(userID))
	s.log.Info("Banner generated", "quiz_id", quizID)
}

func (s *BannerService) unlock(quizID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.Unlock(ctx, cache.BannerLockKey(quizID)); err != nil {
		s.log.Warn("Banner unlock failed", "quiz_id", quizID, "error", err)
	}
}

// Generate produces a banner URL without persisting it.
func (s *BannerService) Generate(ctx context.Context, topic, title string) (string, error) {
	if strings.TrimSpace(topic) == "" || strings.TrimSpace(title) == "" {
		return "", fmt.Errorf("%w: topic and title are required", ErrInvalidInput)
	}
	if s.images == nil {
		return "", ai.ErrNotConfigured
	}
	return s.images.GenerateImage(ctx, ai.BannerPrompt(topic, title))
}

// rehost copies a provider URL into object storage. Provider URLs expire,
// so the stored copy is preferred when storage is configured.
func (s *BannerService) rehost(ctx context.Context, quizID uuid.UUID, url string) string {
	if s.blobs == nil {
		return url
	}
	data, contentType, err := s.images.Download(ctx, url)
	if err != nil {
		s.log.Warn("Banner download failed", "quiz_id", quizID, "error", err)
		return url
	}
	stored, err := s.blobs.Put(ctx, storage.BannerKey(quizID, contentType), contentType, data)
	if err != nil {
		s.log.Warn("Banner upload failed", "quiz_id", quizID, "error", err)
		return url
	}
	return stored
}

// Regenerate clears the banner and starts a new generation. Nothing changes
// when a generation for the quiz is already running.
func (s *BannerService) Regenerate(ctx context.Context, userID, quizID uuid.UUID) error {
	if s.images == nil {
		return ai.ErrNotConfigured
	}
	var quiz models.Quiz
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", quizID, userID).First(&quiz).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	ok, err := s.store.TryLock(ctx, cache.BannerLockKey(quizID), bannerLockTTL)
	if err != nil {
		return fmt.Errorf("banner lock: %w", err)
	}
	if !ok {
		return ErrBannerInFlight
	}

	if err := s.db.WithContext(ctx).Model(&quiz).Update("banner_url", nil).Error; err != nil {
		s.unlock(quizID)
		return err
	}
	quiz.BannerURL = nil
	s.invalidate(ctx, cache.QuizKey(userID, quizID))
	s.invalidate(ctx, cache.QuizzesKey(userID))
	s.Discard(ctx, quizID)

	s.start(userID, &quiz)
	return nil
}

// Discard removes every stored banner of the quiz. Failures are logged.
func (s *BannerService) Discard(ctx context.Context, quizID uuid.UUID) {
	if s.blobs == nil {
		return
	}
	if err := s.blobs.DeletePrefix(ctx, storage.BannerPrefix(quizID)); err != nil {
		s.log.Warn("Deleting stored banner failed", "quiz_id", quizID, "error", err)
	}
}

// Wait blocks until every started generation has finished.
func (s *BannerService) Wait() {
	s.wg.Wait()
}

func (s *BannerService) invalidate(ctx context.Context, key string) {
	if err := s.store.Invalidate(ctx, key); err != nil {
		s.log.Warn("Cache invalidation failed", "key", key, "error", err)
	}
}
