package ai

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/local/newsdigest/internal/article"
	"github.com/local/newsdigest/internal/imagerender"
)

// MaxInputRunes caps page text sent to the text model.
const MaxInputRunes = 8000

const extractionSystem = "You are a news article extraction assistant. You handle multilingual text including Telugu. Output only valid JSON."

// Reconstructor asks a chat model for the articles on a page.
type Reconstructor struct {
	Client      ChatClient
	TextModel   string
	VisionModel string
	// Focus restricts extraction to news about this subject; empty keeps all news.
	Focus string
}

// NewReconstructor returns a model-backed article.Reconstructor.
func NewReconstructor(client ChatClient, textModel, visionModel, focus string) *Reconstructor {
	return &Reconstructor{Client: client, TextModel: textModel, VisionModel: visionModel, Focus: focus}
}

func (r *Reconstructor) rules(visual bool) string {
	var b strings.Builder
	if r.Focus != "" {
		fmt.Fprintf(&b, "Extract ONLY news articles related to %q.\n", r.Focus)
	} else {
		b.WriteString("Extract every news article on the page.\n")
	}
	b.WriteString("For each article, identify the headline and the body text.\n\n")
	b.WriteString(`Return a valid JSON object: {"articles": [{"headline": "...", "body": "..."}]}` + "\n\n")
	b.WriteString("Rules:\n")
	if r.Focus != "" {
		fmt.Fprintf(&b, "1. FILTER STRICTLY: only news about %s, including official statements, orders, schemes, policies and district administration.\n", r.Focus)
		b.WriteString("2. IGNORE general crime, sports, entertainment and unrelated national news.\n")
	} else {
		b.WriteString("1. Skip advertisements, mastheads and page furniture.\n")
		b.WriteString("2. Do not merge unrelated stories.\n")
	}
	if visual {
		b.WriteString("3. Determine the body by visually associating columns of text with the headline.\n")
	} else {
		b.WriteString("3. Headlines are usually short, capitalised or title-cased; body text follows the headline.\n")
	}
	b.WriteString("4. If text is in Telugu or another regional script, preserve it exactly as written. Do not translate.\n")
	return b.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// FromText extracts articles from a page's digital text.
func (r *Reconstructor) FromText(ctx context.Context, text string) ([]article.Candidate, error) {
	text = truncateRunes(text, MaxInputRunes)
	prompt := "Analyze this newspaper page text.\n" + r.rules(false) + "\nPage Text:\n" + text

	resp, err := r.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.TextModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractionSystem},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:    0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return nil, fmt.Errorf("text extraction call: %w", err)
	}
	return r.parse(ctx, resp, article.SourceModelText)
}

// FromImage extracts articles from a rendered page image (JPEG).
func (r *Reconstructor) FromImage(ctx context.Context, jpeg []byte) ([]article.Candidate, error) {
	prompt := "Analyze this newspaper page image.\n" + r.rules(true)

	resp, err := r.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.VisionModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractionSystem},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    imagerender.DataURL(jpeg),
						Detail: openai.ImageURLDetailHigh,
					}},
				},
			},
		},
		Temperature:    0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return nil, fmt.Errorf("vision extraction call: %w", err)
	}
	return r.parse(ctx, resp, article.SourceModelVision)
}

func (r *Reconstructor) parse(ctx context.Context, resp openai.ChatCompletionResponse, src article.Source) ([]article.Candidate, error) {
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}
	content := resp.Choices[0].Message.Content
	cands, err := ParseArticles(content, article.ConfidenceModel, src)
	if err != nil {
		zerolog.Ctx(ctx).Warn().
			Str("source", string(src)).
			Str("raw", truncateRunes(content, 500)).
			Msg("model returned malformed articles JSON")
		return nil, err
	}
	if len(cands) == 0 {
		zerolog.Ctx(ctx).Info().Str("source", string(src)).Msg("no articles extracted from model output")
	}
	return cands, nil
}
