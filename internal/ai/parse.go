package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/local/newsdigest/internal/article"
)

type articlePayload struct {
	Articles []struct {
		Headline string `json:"headline"`
		Body     string `json:"body"`
	} `json:"articles"`
}

// stripFences removes markdown code fences models sometimes wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// ParseArticles decodes {"articles":[{"headline","body"}]} into candidates.
// Items failing candidate validation are skipped; content that is not the
// expected JSON yields ErrMalformedResponse.
func ParseArticles(content string, confidence float64, source article.Source) ([]article.Candidate, error) {
	var p articlePayload
	if err := json.Unmarshal([]byte(stripFences(content)), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	out := make([]article.Candidate, 0, len(p.Articles))
	for _, a := range p.Articles {
		c, err := article.NewCandidate(a.Headline, a.Body, confidence, source, nil)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
