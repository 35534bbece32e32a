package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"lingotutor/cache"
	"lingotutor/logger"
	"lingotutor/models"
)

const playStateTTL = 2 * time.Hour

type PlayService struct {
	quizzes *QuizService
	store   cache.Store
	log     *logger.Logger
	intN    func(n int) int
}

func NewPlayService(quizzes *QuizService, store cache.Store, log *logger.Logger) *PlayService {
	return &PlayService{
		quizzes: quizzes,
		store:   store,
		log:     log.With("service", "PlayService"),
		intN:    rand.IntN,
	}
}

// PlayState is one learner's pass through a quiz.
type PlayState struct {
	QuizID    uuid.UUID      `json:"quiz_id"`
	Questions []PlayQuestion `json:"questions"`
	Index     int            `json:"index"`
	Selected  *string        `json:"selected,omitempty"`
	Answered  int            `json:"answered"`
	Score     int            `json:"score"`
	Complete  bool           `json:"complete"`
}

type PlayQuestion struct {
	ID            uuid.UUID `json:"id"`
	Question      string    `json:"question"`
	Answers       [4]string `json:"answers"`
	CorrectAnswer string    `json:"correct_answer"`
}

// PlayView is what the learner sees. The correct answer stays hidden until
// the current question has been answered.
type PlayView struct {
	QuizID        uuid.UUID        `json:"quiz_id"`
	Index         int              `json:"index"`
	Total         int              `json:"total"`
	Question      PlayQuestionView `json:"question"`
	Selected      *string          `json:"selected,omitempty"`
	CorrectAnswer *string          `json:"correct_answer,omitempty"`
	IsCorrect     *bool            `json:"is_correct,omitempty"`
	Score         int              `json:"score"`
	Complete      bool             `json:"complete"`
}

type PlayQuestionView struct {
	ID       uuid.UUID `json:"id"`
	Question string    `json:"question"`
	Answers  [4]string `json:"answers"`
}

// ShuffleAnswers returns the four choices of q in uniformly random order
// (Fisher-Yates). intN must return a value in [0, n).
func ShuffleAnswers(q models.Question, intN func(n int) int) [4]string {
	answers := q.Choices()
	for i := len(answers) - 1; i > 0; i-- {
		j := intN(i + 1)
		answers[i], answers[j] = answers[j], answers[i]
	}
	return answers
}

// StartPlay begins a fresh pass, discarding any previous one.
func (s *PlayService) StartPlay(ctx context.Context, userID, quizID uuid.UUID) (*PlayView, error) {
	questions, err := s.quizzes.GetQuestions(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	state := &PlayState{
		QuizID:    quizID,
		Questions: make([]PlayQuestion, len(questions)),
	}
	for i, q := range questions {
		state.Questions[i] = PlayQuestion{
			ID:            q.ID,
			Question:      q.Question,
			Answers:       ShuffleAnswers(q, s.intN),
			CorrectAnswer: q.CorrectAnswer,
		}
	}

	if err := s.storePlayState(ctx, userID, state); err != nil {
		return nil, err
	}
	return state.View(), nil
}

func (s *PlayService) GetPlay(ctx context.Context, userID, quizID uuid.UUID) (*PlayView, error) {
	state, err := s.getPlayState(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	return state.View(), nil
}

// Answer records the selection for the current question. Answering the last
// question completes the quiz.
func (s *PlayService) Answer(ctx context.Context, userID, quizID uuid.UUID, answer string) (*PlayView, error) {
	state, err := s.getPlayState(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	if err := state.Answer(answer); err != nil {
		return nil, err
	}
	if err := s.storePlayState(ctx, userID, state); err != nil {
		return nil, err
	}
	if state.Complete {
		s.log.Info("Quiz completed", "quiz_id", quizID, "score", state.Score, "total", len(state.Questions))
	}
	return state.View(), nil
}

func (s *PlayService) Next(ctx context.Context, userID, quizID uuid.UUID) (*PlayView, error) {
	state, err := s.getPlayState(ctx, userID, quizID)
	if err != nil {
		return nil, err
	}
	if err := state.Next(); err != nil {
		return nil, err
	}
	if err := s.storePlayState(ctx, userID, state); err != nil {
		return nil, err
	}
	return state.View(), nil
}

func (st *PlayState) Answer(answer string) error {
	if st.Complete {
		return ErrQuizComplete
	}
	if st.Selected != nil {
		return ErrAnswered
	}
	q := st.Questions[st.Index]
	valid := false
	for _, a := range q.Answers {
		if a == answer {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: %q is not one of the choices", ErrInvalidInput, answer)
	}

	st.Selected = &answer
	st.Answered++
	if answer == q.CorrectAnswer {
		st.Score++
	}
	if st.Answered == len(st.Questions) {
		st.Complete = true
	}
	return nil
}

func (st *PlayState) Next() error {
	if st.Complete {
		return ErrQuizComplete
	}
	if st.Selected == nil {
		return ErrNotAnswered
	}
	st.Index++
	st.Selected = nil
	return nil
}

func (st *PlayState) View() *PlayView {
	q := st.Questions[st.Index]
	view := &PlayView{
		QuizID: st.QuizID,
		Index:  st.Index,
		Total:  len(st.Questions),
		Question: PlayQuestionView{
			ID:       q.ID,
			Question: q.Question,
			Answers:  q.Answers,
		},
		Selected: st.Selected,
		Score:    st.Score,
		Complete: st.Complete,
	}
	if st.Selected != nil {
		correct := q.CorrectAnswer
		isCorrect := *st.Selected == correct
		view.CorrectAnswer = &correct
		view.IsCorrect = &isCorrect
	}
	return view
}

func (s *PlayService) storePlayState(ctx context.Context, userID uuid.UUID, state *PlayState) error {
	if err := s.store.Set(ctx, cache.PlayKey(userID, state.QuizID), state, playStateTTL); err != nil {
		return fmt.Errorf("failed to store play state: %w", err)
	}
	return nil
}

func (s *PlayService) getPlayState(ctx context.Context, userID, quizID uuid.UUID) (*PlayState, error) {
	var state PlayState
	ok, err := s.store.Get(ctx, cache.PlayKey(userID, quizID), &state)
	if err != nil {
		return nil, fmt.Errorf("failed to load play state: %w", err)
	}
	if !ok || len(state.Questions) == 0 || state.Index >= len(state.Questions) {
		return nil, ErrNoPlay
	}
	return &state, nil
}
