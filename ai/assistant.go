package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Completer is the chat-completion capability the assistant builds on.
type Completer interface {
	Complete(ctx context.Context, system string, turns []Turn, prompt string) (string, error)
}

const (
	tutorPrompt = `You are a friendly English tutor. The learner may write in English or Portuguese. ` +
		`Always answer in clear, simple English, gently correct mistakes and keep the conversation going.`

	suggestionPrompt = `You are a helpful AI that generates short, natural message suggestions based on chat history. ` +
		`Keep suggestions concise and conversational. Respond with just the suggested message, nothing else.`

	suggestionRequest = `Generate a natural response suggestion based on this conversation.`

	questionsPrompt = `You are a quiz generator for English learners. Respond with ONLY a JSON array ` +
		`(no markdown, no code fences, no explanations) where every element has the form ` +
		`{"question": "...", "correct_answer": "...", "wrong_answers": ["...", "...", "..."]}. ` +
		`Every question has exactly one correct answer and exactly three distinct wrong answers.`
)

// GeneratedQuestion is one element of the question-generation payload. It is
// returned unvalidated; callers decide what a well-formed item is.
type GeneratedQuestion struct {
	Question      string   `json:"question"`
	CorrectAnswer string   `json:"correct_answer"`
	WrongAnswers  []string `json:"wrong_answers"`
}

// Assistant implements the text functions: chat replies, suggestions,
// translation and question generation.
type Assistant struct {
	llm Completer
}

func NewAssistant(llm Completer) *Assistant {
	return &Assistant{llm: llm}
}

func (a *Assistant) Reply(ctx context.Context, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyInput
	}
	return a.llm.Complete(ctx, tutorPrompt, nil, message)
}

// Suggest proposes the learner's next message from the given history. The
// caller decides how much history to pass.
func (a *Assistant) Suggest(ctx context.Context, topic string, history []Turn) (string, error) {
	system := suggestionPrompt
	if t := strings.TrimSpace(topic); t != "" {
		system += fmt.Sprintf(" The conversation topic is %q.", t)
	}
	return a.llm.Complete(ctx, system, history, suggestionRequest)
}

func (a *Assistant) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	if strings.TrimSpace(text) == "" || strings.TrimSpace(targetLanguage) == "" {
		return "", fmt.Errorf("%w: text and target language are required", ErrEmptyInput)
	}
	system := fmt.Sprintf("You are a translator. Translate the following text to %s. Only respond with the translation, nothing else.", targetLanguage)
	return a.llm.Complete(ctx, system, nil, text)
}

func (a *Assistant) GenerateQuestions(ctx context.Context, topic string, count int) ([]GeneratedQuestion, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrEmptyInput)
	}
	if count <= 0 {
		count = 10
	}
	prompt := fmt.Sprintf("Generate %d multiple-choice questions about %q.", count, topic)
	raw, err := a.llm.Complete(ctx, questionsPrompt, nil, prompt)
	if err != nil {
		return nil, err
	}
	return ParseQuestions(raw)
}

// ParseQuestions decodes a question-generation payload. Models sometimes wrap
// JSON in a markdown fence; that wrapper is tolerated.
func ParseQuestions(raw string) ([]GeneratedQuestion, error) {
	cleaned := stripFence(raw)
	var out []GeneratedQuestion
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return out, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
