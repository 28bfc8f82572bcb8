package ai

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ChatClient is the subset of the OpenAI client the model-backed components
// need, so any OpenAI-compatible backend or a test fake can stand in.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

var (
	ErrRateLimited       = errors.New("rate_limited")
	ErrContentRefused    = errors.New("content_refused")
	ErrMalformedResponse = errors.New("malformed_response")
	ErrNoChoices         = errors.New("no choices")
)

func IsRateLimited(err error) bool    { return errors.Is(err, ErrRateLimited) }
func IsContentRefused(err error) bool { return errors.Is(err, ErrContentRefused) }

// isTransient reports errors worth retrying or failing over on.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimited(err) || IsContentRefused(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 500 {
		return true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && (reqErr.HTTPStatusCode >= 500 || reqErr.HTTPStatusCode == 429) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "eof")
}

// isFatal reports client errors that no retry will fix.
func isFatal(err error) bool {
	if err == nil || isTransient(err) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 {
		return true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode >= 400 && reqErr.HTTPStatusCode < 500 {
		return true
	}
	return false
}

// resultLabel classifies an error for metrics.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsRateLimited(err):
		return "rate_limited"
	case IsContentRefused(err):
		return "refused"
	case isTransient(err):
		return "transient"
	case isFatal(err):
		return "fatal"
	}
	return "unknown"
}
