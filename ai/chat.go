package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"lingotutor/logger"
)

// Turn is one prior message of a conversation handed to the model.
type Turn struct {
	IsUser  bool
	Content string
}

// ChatClient sends chat completions to an OpenAI-compatible endpoint.
type ChatClient struct {
	log    *logger.Logger
	client *openai.Client
	model  string
}

// NewOpenAIClient builds the client shared by chat and speech. Requests are
// never retried.
func NewOpenAIClient(log *logger.Logger, baseURL, apiKey string) *openai.Client {
	options := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}
	if apiKey == "" {
		log.Warn("OPENAI_API_KEY is not set, will try unauthenticated access")
	} else {
		options = append(options, option.WithAPIKey(apiKey))
	}

	client := openai.NewClient(options...)
	return &client
}

func NewChatClient(log *logger.Logger, client *openai.Client, model string) *ChatClient {
	return &ChatClient{
		log:    log.With("service", "ChatClient"),
		client: client,
		model:  model,
	}
}

// Complete runs one completion: system instructions, the prior turns in
// order, then the final user prompt.
func (c *ChatClient) Complete(ctx context.Context, system string, turns []Turn, prompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+2)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	for _, t := range turns {
		if t.IsUser {
			messages = append(messages, openai.UserMessage(t.Content))
		} else {
			messages = append(messages, openai.AssistantMessage(t.Content))
		}
	}
	if prompt != "" {
		messages = append(messages, openai.UserMessage(prompt))
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    c.model,
	})
	if err != nil {
		return "", openAIError("chat completion", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no content choices", ErrMalformedResponse)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func openAIError(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: "openai", Status: apiErr.StatusCode, Body: apiErr.Error()}
	}
	return fmt.Errorf("%s: %w", op, err)
}
