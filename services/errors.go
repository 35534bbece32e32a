package services

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrEmailTaken     = errors.New("email already registered")
	ErrEmptyName      = errors.New("name must not be empty")
	ErrNoThread       = errors.New("no thread selected")
	ErrSendInFlight   = errors.New("a message is already being sent on this thread")
	ErrGeneration     = errors.New("question generation failed")
	ErrNoQuestions    = errors.New("quiz has no questions")
	ErrNoPlay         = errors.New("no quiz in progress")
	ErrAnswered       = errors.New("question already answered")
	ErrNotAnswered    = errors.New("answer the current question first")
	ErrQuizComplete   = errors.New("quiz already complete")
	ErrBannerInFlight = errors.New("banner generation already in progress")
)
