package classify

import (
	"context"
	"strings"

	"github.com/local/newsdigest/internal/article"
)

var (
	positiveWords = []string{"growth", "success", "victory", "profit", "gain", "improve", "record", "happy", "win"}
	negativeWords = []string{"loss", "fail", "defeat", "crash", "crisis", "accident", "death", "disaster", "warning"}
)

// KeywordSentiment scores sentiment from fixed word lists. Each word counts
// at most once, matched as a substring of the lower-cased text.
type KeywordSentiment struct{}

func (KeywordSentiment) Sentiment(_ context.Context, c article.Candidate) (string, float64, error) {
	label, conf := keywordSentiment(c.Headline + " " + c.Body)
	return label, conf, nil
}

func keywordSentiment(text string) (string, float64) {
	text = strings.ToLower(text)
	pos := countPresent(text, positiveWords)
	neg := countPresent(text, negativeWords)
	total := pos + neg
	switch {
	case total == 0:
		return article.SentimentNeutral, 0.5
	case pos > neg:
		return article.SentimentPositive, 0.5 + 0.5*float64(pos)/float64(total)
	case neg > pos:
		return article.SentimentNegative, 0.5 + 0.5*float64(neg)/float64(total)
	default:
		return article.SentimentNeutral, 0.6
	}
}

func countPresent(text string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}
