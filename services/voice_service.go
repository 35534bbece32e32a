package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"lingotutor/ai"
	"lingotutor/models"
)

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

type TextAssistant interface {
	Suggest(ctx context.Context, topic string, history []ai.Turn) (string, error)
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
}

// VoiceService holds the stateless per-interaction helpers: speech in,
// speech out, reply suggestions and translation.
type VoiceService struct {
	transcriber Transcriber
	synthesizer Synthesizer
	assistant   TextAssistant
	messages    *MessageService
	window      int
}

func NewVoiceService(transcriber Transcriber, synthesizer Synthesizer, assistant TextAssistant, messages *MessageService, window int) *VoiceService {
	if window <= 0 {
		window = 5
	}
	return &VoiceService{
		transcriber: transcriber,
		synthesizer: synthesizer,
		assistant:   assistant,
		messages:    messages,
		window:      window,
	}
}

// Transcribe accepts base64 audio, optionally as a data URL.
func (s *VoiceService) Transcribe(ctx context.Context, audioBase64 string) (string, error) {
	audio, err := decodeAudio(audioBase64)
	if err != nil {
		return "", err
	}
	return s.transcriber.Transcribe(ctx, audio)
}

// Synthesize returns base64-encoded MP3 audio.
func (s *VoiceService) Synthesize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: text is required", ErrInvalidInput)
	}
	audio, err := s.synthesizer.Synthesize(ctx, text)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(audio), nil
}

// Suggest proposes the learner's next message from the trailing window of
// messages.
func (s *VoiceService) Suggest(ctx context.Context, topic string, messages []models.ChatMessage) (string, error) {
	if len(messages) > s.window {
		messages = messages[len(messages)-s.window:]
	}
	turns := make([]ai.Turn, 0, len(messages))
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		turns = append(turns, ai.Turn{IsUser: m.IsUser, Content: m.Content})
	}
	return s.assistant.Suggest(ctx, topic, turns)
}

func (s *VoiceService) SuggestForThread(ctx context.Context, userID, threadID uuid.UUID, topic string) (string, error) {
	if threadID == uuid.Nil {
		return "", ErrNoThread
	}
	recent, err := s.messages.Recent(ctx, userID, threadID, s.window)
	if err != nil {
		return "", err
	}
	return s.Suggest(ctx, topic, recent)
}

func (s *VoiceService) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	if strings.TrimSpace(text) == "" || strings.TrimSpace(targetLanguage) == "" {
		return "", fmt.Errorf("%w: text and targetLanguage are required", ErrInvalidInput)
	}
	return s.assistant.Translate(ctx, text, targetLanguage)
}

func decodeAudio(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "data:") {
		if i := strings.Index(raw, ","); i >= 0 {
			raw = raw[i+1:]
		}
	}
	if raw == "" {
		return nil, fmt.Errorf("%w: audio is required", ErrInvalidInput)
	}
	audio, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: audio is not valid base64", ErrInvalidInput)
	}
	return audio, nil
}
