package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"lingotutor/logger"
	"lingotutor/models"
	"lingotutor/storage"
)

type Replier interface {
	Reply(ctx context.Context, message string) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// ChatService runs one send: make sure a thread exists, store the learner's
// message, ask the model, store the reply. A failed completion leaves the
// learner's message in place.
type ChatService struct {
	threads  *ThreadService
	messages *MessageService
	replier  Replier
	speech   Synthesizer
	blobs    storage.BlobStore
	log      *logger.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewChatService(threads *ThreadService, messages *MessageService, replier Replier, speech Synthesizer, blobs storage.BlobStore, log *logger.Logger) *ChatService {
	return &ChatService{
		threads:  threads,
		messages: messages,
		replier:  replier,
		speech:   speech,
		blobs:    blobs,
		log:      log.With("service", "ChatService"),
		inFlight: make(map[string]struct{}),
	}
}

type SendRequest struct {
	ThreadID *uuid.UUID `json:"thread_id"`
	Message  string     `json:"message" binding:"required"`
	Speak    bool       `json:"speak"`
}

type SendResult struct {
	Thread           *models.ChatThread  `json:"thread"`
	UserMessage      *models.ChatMessage `json:"user_message"`
	AssistantMessage *models.ChatMessage `json:"assistant_message,omitempty"`
}

// Send returns a partial result alongside the error when the completion
// step fails, so the caller still learns which thread was used.
func (s *ChatService) Send(ctx context.Context, sess *Session, req SendRequest) (*SendResult, error) {
	if !sess.Active() {
		return nil, ErrUnauthorized
	}
	content := strings.TrimSpace(req.Message)
	if content == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}

	var (
		thread *models.ChatThread
		err    error
	)
	if req.ThreadID == nil || *req.ThreadID == uuid.Nil {
		thread, err = s.threads.Create(ctx, sess.UserID)
	} else {
		thread, err = s.threads.Get(ctx, sess.UserID, *req.ThreadID)
	}
	if err != nil {
		return nil, err
	}

	release, ok := s.acquire(sess.UserID, thread.ID)
	if !ok {
		return nil, ErrSendInFlight
	}
	defer release()

	result := &SendResult{Thread: thread}
	result.UserMessage, err = s.messages.Append(ctx, sess.UserID, thread.ID, content, true, nil)
	if err != nil {
		return nil, err
	}

	reply, err := s.replier.Reply(ctx, content)
	if err != nil {
		s.log.Warn("Chat completion failed", "thread_id", thread.ID, "error", err)
		return result, fmt.Errorf("chat completion: %w", err)
	}

	var audioURL *string
	if req.Speak {
		audioURL = s.speak(ctx, thread.ID, reply)
	}

	result.AssistantMessage, err = s.messages.Append(ctx, sess.UserID, thread.ID, reply, false, audioURL)
	if err != nil {
		return result, err
	}
	return result, nil
}

// speak synthesizes the reply and stores it. Failures only cost the audio.
func (s *ChatService) speak(ctx context.Context, threadID uuid.UUID, text string) *string {
	if s.speech == nil || s.blobs == nil {
		return nil
	}
	audio, err := s.speech.Synthesize(ctx, text)
	if err != nil {
		s.log.Warn("Speech synthesis failed", "thread_id", threadID, "error", err)
		return nil
	}
	url, err := s.blobs.Put(ctx, storage.AudioKey(threadID), "audio/mpeg", audio)
	if err != nil {
		s.log.Warn("Storing synthesized audio failed", "thread_id", threadID, "error", err)
		return nil
	}
	return &url
}

func (s *ChatService) acquire(userID, threadID uuid.UUID) (func(), bool) {
	key := userID.String() + "/" + threadID.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return nil, false
	}
	s.inFlight[key] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.inFlight, key)
		s.mu.Unlock()
	}, true
}
