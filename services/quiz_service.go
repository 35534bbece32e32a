package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lingotutor/ai"
	"lingotutor/cache"
	"lingotutor/logger"
	"lingotutor/models"
)

type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, topic string, count int) ([]ai.GeneratedQuestion, error)
}

type QuizService struct {
	db           *gorm.DB
	store        cache.Store
	generator    QuestionGenerator
	banners      *BannerService
	log          *logger.Logger
	defaultCount int
}

func NewQuizService(db *gorm.DB, store cache.Store, generator QuestionGenerator, banners *BannerService, log *logger.Logger, defaultCount int) *QuizService {
	if defaultCount <= 0 {
		defaultCount = 10
	}
	return &QuizService{
		db:           db,
		store:        store,
		generator:    generator,
		banners:      banners,
		log:          log.With("service", "QuizService"),
		defaultCount: defaultCount,
	}
}

type CreateQuizRequest struct {
	Title string `json:"title" binding:"required"`
	Topic string `json:"topic" binding:"required"`
	Count int    `json:"count"`
}

// CreateQuiz stores the quiz, generates its questions and inserts all of
// them or none. The quiz row is kept when generation or insertion fails.
func (s *QuizService) CreateQuiz(ctx context.Context, userID uuid.UUID, req *CreateQuizRequest) (*models.Quiz, error) {
	title := strings.TrimSpace(req.Title)
	topic := strings.TrimSpace(req.Topic)
	if title == "" || topic == "" {
		return nil, fmt.Errorf("%w: title and topic are required", ErrInvalidInput)
	}
	count := req.Count
	if count <= 0 {
		count = s.defaultCount
	}

	quiz := models.Quiz{
		UserID: userID,
		Title:  title,
		Topic:  topic,
	}
	if err := s.db.WithContext(ctx).Create(&quiz).Error; err != nil {
		return nil, err
	}
	s.invalidate(ctx, cache.QuizzesKey(userID))

	generated, err := s.generator.GenerateQuestions(ctx, topic, count)
	if err != nil {
		s.log.Warn("Question generation failed", "quiz_id", quiz.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	questions, err := BuildQuestions(quiz.ID, generated)
	if err != nil {
		s.log.Warn("Rejected generated questions", "quiz_id", quiz.ID, "error", err)
		return nil, err
	}

	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(&questions).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	s.invalidate(ctx, cache.QuestionsKey(userID, quiz.ID))
	quiz.Questions = questions
	s.log.Info("Quiz created", "quiz_id", quiz.ID, "questions", len(questions))
	return &quiz, nil
}

// BuildQuestions validates a generated question set. One malformed item
// rejects the whole set.
func BuildQuestions(quizID uuid.UUID, generated []ai.GeneratedQuestion) ([]models.Question, error) {
	if len(generated) == 0 {
		return nil, fmt.Errorf("%w: %w: no questions returned", ErrGeneration, ai.ErrMalformedResponse)
	}
	questions := make([]models.Question, 0, len(generated))
	for i, g := range generated {
		if err := validateGenerated(g); err != nil {
			return nil, fmt.Errorf("%w: %w: item %d: %v", ErrGeneration, ai.ErrMalformedResponse, i, err)
		}
		questions = append(questions, models.Question{
			QuizID:        quizID,
			Question:      strings.TrimSpace(g.Question),
			CorrectAnswer: strings.TrimSpace(g.CorrectAnswer),
			WrongAnswer1:  strings.TrimSpace(g.WrongAnswers[0]),
			WrongAnswer2:  strings.TrimSpace(g.WrongAnswers[1]),
			WrongAnswer3:  strings.TrimSpace(g.WrongAnswers[2]),
			Position:      i,
		})
	}
	return questions, nil
}

func validateGenerated(g ai.GeneratedQuestion) error {
	if strings.TrimSpace(g.Question) == "" {
		return errors.New("missing question")
	}
	if strings.TrimSpace(g.CorrectAnswer) == "" {
		return errors.New("missing correct_answer")
	}
	if len(g.WrongAnswers) != 3 {
		return fmt.Errorf("want 3 wrong_answers, got %d", len(g.WrongAnswers))
	}
	seen := map[string]bool{strings.TrimSpace(g.CorrectAnswer): true}
	for _, w := range g.WrongAnswers {
		w = strings.TrimSpace(w)
		if w == "" {
			return errors.New("blank wrong answer")
		}
		if seen[w] {
			return fmt.Errorf("duplicate answer %q", w)
		}
		seen[w] = true
	}
	return nil
}

func (s *QuizService) GetUserQuizzes(ctx context.Context, userID uuid.UUID) ([]models.Quiz, error) {
	return cache.Load(ctx, s.store, cache.QuizzesKey(userID), cache.DefaultTTL, func(ctx context.Context) ([]models.Quiz, error) {
		quizzes := []models.Quiz{}
		err := s.db.WithContext(ctx).
			Where("user_id = ?", userID).
			Order("created_at DESC").
			Find(&quizzes).Error
		return quizzes, err
	})
}

// GetQuizByID loads the quiz and, when it has no banner yet, starts one
// generation in the background.
func (s *QuizService) GetQuizByID(ctx context.Context, userID, quizID uuid.UUID) (*models.Quiz, error) {
	quiz, err := cache.Load(ctx, s.store, cache.QuizKey(userID, quizID), cache.DefaultTTL, func(ctx context.Context) (*models.Quiz, error) {
		return s.findOwned(ctx, s.db, userID, quizID)
	})
	if err != nil {
		return nil, err
	}
	if s.banners != nil {
		s.banners.Ensure(userID, quiz)
	}
	return quiz, nil
}

func (s *QuizService) GetQuestions(ctx context.Context, userID, quizID uuid.UUID) ([]models.Question, error) {
	if _, err := s.findOwned(ctx, s.db, userID, quizID); err != nil {
		return nil, err
	}
	return cache.Load(ctx, s.store, cache.QuestionsKey(userID, quizID), cache.DefaultTTL, func(ctx context.Context) ([]models.Question, error) {
		questions := []models.Question{}
		err := s.db.WithContext(ctx).
			Where("quiz_id = ?", quizID).
			Order("position ASC").
			Order("created_at ASC").
			Find(&questions).Error
		return questions, err
	})
}

func (s *QuizService) DeleteQuiz(ctx context.Context, userID, quizID uuid.UUID) error {
	if _, err := s.findOwned(ctx, s.db, userID, quizID); err != nil {
		return err
	}

	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Where("quiz_id = ?", quizID).Delete(&models.Question{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Where("id = ? AND user_id = ?", quizID, userID).Delete(&models.Quiz{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return err
	}

	for _, key := range []string{
		cache.QuizzesKey(userID),
		cache.QuizKey(userID, quizID),
		cache.QuestionsKey(userID, quizID),
		cache.PlayKey(userID, quizID),
	} {
		s.invalidate(ctx, key)
	}
	if s.banners != nil {
		s.banners.Discard(ctx, quizID)
	}
	return nil
}

func (s *QuizService) findOwned(ctx context.Context, db *gorm.DB, userID, quizID uuid.UUID) (*models.Quiz, error) {
	var quiz models.Quiz
	if err := db.WithContext(ctx).Where("id = ? AND user_id = ?", quizID, userID).First(&quiz).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &quiz, nil
}

func (s *QuizService) invalidate(ctx context.Context, key string) {
	if err := s.store.Invalidate(ctx, key); err != nil {
		s.log.Warn("Cache invalidation failed", "key", key, "error", err)
	}
}
