package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/replicate/replicate-go"
)

// ImageClient generates images through Replicate's predictions API.
type ImageClient struct {
	r8           *replicate.Client
	httpClient   *http.Client
	owner        string
	name         string
	pollInterval time.Duration
}

// NewImageClient returns a client for model ("owner/name"). A blank token
// yields a client whose calls fail with ErrNotConfigured.
func NewImageClient(token, model, baseURL string) (*ImageClient, error) {
	owner, name, ok := strings.Cut(model, "/")
	if !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("invalid replicate model %q, want owner/name", model)
	}
	c := &ImageClient{
		httpClient:   &http.Client{Timeout: 90 * time.Second},
		owner:        owner,
		name:         name,
		pollInterval: time.Second,
	}
	if token == "" {
		return c, nil
	}

	opts := []replicate.ClientOption{replicate.WithToken(token)}
	if baseURL != "" {
		opts = append(opts, replicate.WithBaseURL(baseURL))
	}
	r8, err := replicate.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create replicate client: %w", err)
	}
	c.r8 = r8
	return c, nil
}

// BannerPrompt builds the illustration prompt for a quiz banner.
func BannerPrompt(topic, title string) string {
	return fmt.Sprintf("Educational illustration for %s, focusing on %s. Clean, professional style suitable for learning English.", topic, title)
}

// GenerateImage returns the URL of one generated image for prompt.
func (c *ImageClient) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if c.r8 == nil {
		return "", ErrNotConfigured
	}
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: prompt is required", ErrEmptyInput)
	}

	input := replicate.PredictionInput{
		"prompt":              prompt,
		"go_fast":             true,
		"megapixels":          "1",
		"num_outputs":         1,
		"aspect_ratio":        "1:1",
		"output_format":       "webp",
		"output_quality":      80,
		"num_inference_steps": 4,
	}
	p, err := c.r8.CreatePredictionWithModel(ctx, c.owner, c.name, input, nil, false)
	if err != nil {
		return "", replicateError(err)
	}
	if err := c.r8.Wait(ctx, p, replicate.WithPollingInterval(c.pollInterval)); err != nil {
		return "", replicateError(err)
	}

	if p.Status != replicate.Succeeded {
		return "", fmt.Errorf("image prediction %s ended with status %q: %v", p.ID, p.Status, p.Error)
	}
	return firstOutputURL(p.Output)
}

// Download fetches a generated image so it can be re-hosted.
func (c *ImageClient) Download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &ProviderError{Provider: "replicate", Status: resp.StatusCode, Body: string(raw)}
	}
	ct := strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0])
	if ct == "" {
		ct = "image/webp"
	}
	return raw, ct, nil
}

func replicateError(err error) error {
	var apiErr *replicate.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: "replicate", Status: apiErr.Status, Body: apiErr.Error()}
	}
	return fmt.Errorf("image prediction: %w", err)
}

// firstOutputURL accepts both a list of URLs and a single URL string.
func firstOutputURL(out any) (string, error) {
	switch v := out.(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok && s != "" {
				return s, nil
			}
		}
	case []string:
		if len(v) > 0 && v[0] != "" {
			return v[0], nil
		}
	}
	return "", fmt.Errorf("%w: unexpected image output %v", ErrMalformedResponse, out)
}
