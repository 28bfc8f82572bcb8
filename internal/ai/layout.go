package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/local/newsdigest/internal/article"
)

// MaxLayoutSegments bounds how many OCR lines are offered to the model.
const MaxLayoutSegments = 200

const layoutSystem = "You are a helpful assistant that outputs strictly valid JSON."

// LayoutGrouper asks a text model to group OCR lines into articles by id.
type LayoutGrouper struct {
	Client ChatClient
	Model  string
}

type layoutPayload struct {
	Articles []struct {
		Headline   string          `json:"headline"`
		SegmentIDs json.RawMessage `json:"segment_ids"`
	} `json:"articles"`
}

// Group implements article.Grouper. Segment ids are block indexes.
func (g *LayoutGrouper) Group(ctx context.Context, blocks []article.TextBlock) ([]article.Candidate, error) {
	if len(blocks) > MaxLayoutSegments {
		blocks = blocks[:MaxLayoutSegments]
	}
	type seg struct {
		ID   int    `json:"id"`
		Text string `json:"text"`
	}
	segs := make([]seg, len(blocks))
	for i, b := range blocks {
		segs[i] = seg{ID: i, Text: b.Text}
	}
	data, err := json.Marshal(segs)
	if err != nil {
		return nil, err
	}

	prompt := "You are an expert news layout analyzer. Group these OCR text segments into news articles.\n\n" +
		"RULES:\n" +
		"1. Each article must have a headline; pick the segment that serves as the headline.\n" +
		"2. segment_ids lists the headline segment and every body segment of the article, in reading order.\n" +
		`3. Return {"articles": [{"headline": "...", "segment_ids": [0, 1, 2]}]}` + "\n" +
		"4. Do not fabricate text.\n\nSegments:\n" + string(data)

	resp, err := g.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: layoutSystem},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:    0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return nil, fmt.Errorf("layout grouping call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}

	var p layoutPayload
	if err := json.Unmarshal([]byte(stripFences(resp.Choices[0].Message.Content)), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var out []article.Candidate
	for _, a := range p.Articles {
		ids, err := parseIDs(a.SegmentIDs)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		headline := strings.TrimSpace(a.Headline)
		var used []article.TextBlock
		var body []string
		for _, id := range ids {
			if id < 0 || id >= len(blocks) {
				continue
			}
			b := blocks[id]
			used = append(used, b)
			if strings.TrimSpace(b.Text) != headline {
				body = append(body, strings.TrimSpace(b.Text))
			}
		}
		c, err := article.NewCandidate(headline, strings.Join(body, " "), article.ConfidenceModelLayout, article.SourceModelLayout, used)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// parseIDs accepts ids as numbers or numeric strings.
func parseIDs(raw json.RawMessage) ([]int, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var nums []int
	if err := json.Unmarshal(raw, &nums); err == nil {
		return nums, nil
	}
	var strs []string
	if err := json.Unmarshal(raw, &strs); err != nil {
		return nil, fmt.Errorf("segment_ids: %w", err)
	}
	nums = make([]int, 0, len(strs))
	for _, s := range strs {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("segment id %q: %w", s, err)
		}
		nums = append(nums, n)
	}
	return nums, nil
}
