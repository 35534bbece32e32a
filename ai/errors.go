package ai

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured     = errors.New("ai provider not configured")
	ErrMalformedResponse = errors.New("malformed provider response")
	ErrEmptyInput        = errors.New("input required")
)

// ProviderError is a non-2xx answer from an upstream AI provider.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
}

func (e *ProviderError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Status, body)
}
