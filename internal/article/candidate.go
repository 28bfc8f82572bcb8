package article

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	ErrEmptyHeadline = errors.New("article: empty headline")
	ErrShortBody     = errors.New("article: body too short")
)

// NewCandidate validates and builds a candidate. Headline and body are
// trimmed; the body must exceed MinBodyLength runes.
func NewCandidate(headline, body string, confidence float64, source Source, segments []TextBlock) (Candidate, error) {
	headline = strings.TrimSpace(headline)
	body = strings.TrimSpace(body)
	if headline == "" {
		return Candidate{}, ErrEmptyHeadline
	}
	if utf8.RuneCountInString(body) <= MinBodyLength {
		return Candidate{}, ErrShortBody
	}
	return Candidate{
		ID:         uuid.NewString(),
		Headline:   headline,
		Body:       body,
		Segments:   segments,
		Confidence: confidence,
		Source:     source,
	}, nil
}

// OnPage stamps the page index on every candidate and its segments.
func OnPage(cands []Candidate, pageIndex int) []Candidate {
	for i := range cands {
		cands[i].PageIndex = pageIndex
		for j := range cands[i].Segments {
			cands[i].Segments[j].PageIndex = pageIndex
		}
	}
	return cands
}
