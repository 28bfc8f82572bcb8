// Package article holds the article candidate model and the heuristic
// segmenter used when no model-grouped layout is available.
package article

import "context"

// Confidence constants by reconstruction source.
const (
	ConfidenceModel       = 0.95
	ConfidenceModelLayout = 0.9
	ConfidenceHeuristic   = 0.6
)

// MinBodyLength is the body rune count a candidate must exceed.
const MinBodyLength = 20

// Source identifies how a candidate was produced.
type Source string

const (
	SourceModelText   Source = "model_text"
	SourceModelVision Source = "model_vision"
	SourceModelLayout Source = "model_layout"
	SourceHeuristic   Source = "heuristic"
)

// Sentiment labels.
const (
	SentimentPositive = "Positive"
	SentimentNegative = "Negative"
	SentimentNeutral  = "Neutral"
)

// BoundingBox is in page units for OCR output and synthetic units for
// blocks derived from a text layer.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// TextBlock is a positioned run of text.
type TextBlock struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
	PageIndex  int         `json:"page_index"`
}

// Candidate is a reconstructed article. Department, sentiment and cluster
// fields are filled by later pipeline stages.
type Candidate struct {
	ID         string      `json:"id"`
	PageIndex  int         `json:"page_index"`
	Headline   string      `json:"headline"`
	Body       string      `json:"body"`
	Segments   []TextBlock `json:"segments,omitempty"`
	Confidence float64     `json:"confidence"`
	Source     Source      `json:"source"`

	Department          string  `json:"department,omitempty"`
	SentimentLabel      string  `json:"sentiment_label,omitempty"`
	SentimentConfidence float64 `json:"sentiment_confidence,omitempty"`
	TopicClusterID      string  `json:"topic_cluster_id,omitempty"`
}

// Reconstructor turns page text or a page image into article candidates.
// Implementations are single-shot; a malformed response is an error for
// that page only.
type Reconstructor interface {
	FromText(ctx context.Context, text string) ([]Candidate, error)
	FromImage(ctx context.Context, jpeg []byte) ([]Candidate, error)
}

// Recognizer is an OCR capability returning positioned word or line blocks.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) ([]TextBlock, error)
}

// Grouper groups positioned blocks into articles, typically with a model.
type Grouper interface {
	Group(ctx context.Context, blocks []TextBlock) ([]Candidate, error)
}
