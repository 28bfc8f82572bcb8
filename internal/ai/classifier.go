package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/local/newsdigest/internal/article"
)

// Classifier asks a chat model for an article's department and sentiment.
// Department output is raw model text; matching it to the catalogue is the
// caller's job.
type Classifier struct {
	Client ChatClient
	Model  string
	// Focus names the government the department catalogue belongs to.
	Focus string
}

func truncateBody(c article.Candidate, n int) string {
	return truncateRunes(c.Body, n)
}

// Department returns the model's department choice for c.
func (cl *Classifier) Department(ctx context.Context, c article.Candidate, departments []string) (string, error) {
	list, _ := json.MarshalIndent(departments, "", "  ")
	focus := cl.Focus
	if focus == "" {
		focus = "the State Government"
	}
	prompt := fmt.Sprintf("Act as a Cabinet Secretary for %s.\n"+
		"Classify the following news article into EXACTLY ONE of these official departments:\n\n%s\n\n"+
		"Article Headline: %s\nArticle Body: %s\n\n"+
		"Rules:\n"+
		"1. If the article is about the Chief Minister but discusses a specific topic, classify under that topic.\n"+
		"2. If the article is purely political or general administrative news, use \"General Administration\".\n"+
		"3. Support Telugu text natively.\n\n"+
		"Return ONLY the department name from the list above. No other text.",
		focus, list, c.Headline, truncateBody(c, 800))

	resp, err := cl.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: cl.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a government classification AI. Output only the exact department name."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("department call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	out := strings.NewReplacer(`"`, "", "'", "").Replace(resp.Choices[0].Message.Content)
	return strings.TrimSpace(out), nil
}

type sentimentPayload struct {
	Sentiment  string   `json:"sentiment"`
	Confidence *float64 `json:"confidence"`
}

// Sentiment returns the model's label (Positive, Negative or Neutral) and
// confidence for c.
func (cl *Classifier) Sentiment(ctx context.Context, c article.Candidate) (string, float64, error) {
	prompt := "Analyze the sentiment of the following news article.\n" +
		`Return ONLY a JSON object with keys: "sentiment" (one of "Positive", "Negative", "Neutral") and "confidence" (float between 0.0 and 1.0).` +
		"\n\nHeadline: " + c.Headline + "\nBody: " + truncateBody(c, 1000)

	resp, err := cl.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: cl.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a sentiment analysis assistant. You output only valid JSON."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:    0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return "", 0, fmt.Errorf("sentiment call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", 0, ErrNoChoices
	}
	var p sentimentPayload
	if err := json.Unmarshal([]byte(stripFences(resp.Choices[0].Message.Content)), &p); err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	label := article.SentimentNeutral
	switch strings.ToLower(strings.TrimSpace(p.Sentiment)) {
	case "positive":
		label = article.SentimentPositive
	case "negative":
		label = article.SentimentNegative
	case "neutral", "":
	default:
		return "", 0, fmt.Errorf("%w: unknown sentiment %q", ErrMalformedResponse, p.Sentiment)
	}
	conf := 0.5
	if p.Confidence != nil {
		conf = *p.Confidence
	}
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return label, conf, nil
}
