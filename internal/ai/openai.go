package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient adapts *openai.Client to ChatClient and maps provider errors
// onto the package sentinels.
type OpenAIClient struct {
	inner *openai.Client
}

// NewOpenAIClient connects to an OpenAI-compatible endpoint. An empty baseURL
// uses the public API.
func NewOpenAIClient(apiKey, baseURL string, timeout time.Duration) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &OpenAIClient{inner: openai.NewClientWithConfig(cfg)}
}

func (c *OpenAIClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	resp, err := c.inner.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return resp, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return resp, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		return resp, err
	}
	if len(resp.Choices) == 0 {
		return resp, ErrNoChoices
	}
	if resp.Choices[0].FinishReason == openai.FinishReasonContentFilter {
		return resp, ErrContentRefused
	}
	return resp, nil
}

// Ping checks that the endpoint answers and the key is accepted.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	_, err := c.inner.ListModels(ctx)
	return err
}
