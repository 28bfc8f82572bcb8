package article

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrNoRecognizer is returned by FromImage when no OCR capability is wired.
var ErrNoRecognizer = errors.New("article: no OCR recognizer configured")

// HeuristicReconstructor reconstructs articles without a language model.
// Text pages are split into synthetic line blocks; images go through OCR.
// When a Grouper is set, OCR blocks are offered to it first and the
// segmenter only runs if grouping fails.
type HeuristicReconstructor struct {
	Segmenter Segmenter
	OCR       Recognizer
	Grouper   Grouper
}

// NewHeuristicReconstructor wires a reconstructor; ocr and grouper may be nil.
func NewHeuristicReconstructor(seg Segmenter, ocr Recognizer, grouper Grouper) *HeuristicReconstructor {
	return &HeuristicReconstructor{Segmenter: seg, OCR: ocr, Grouper: grouper}
}

func (h *HeuristicReconstructor) FromText(ctx context.Context, text string) ([]Candidate, error) {
	cands, unassigned := h.Segmenter.Segment(SyntheticBlocks(text, 0))
	zerolog.Ctx(ctx).Debug().
		Int("articles", len(cands)).
		Int("unassigned", len(unassigned)).
		Msg("heuristic text segmentation")
	return cands, nil
}

func (h *HeuristicReconstructor) FromImage(ctx context.Context, jpeg []byte) ([]Candidate, error) {
	if h.OCR == nil {
		return nil, ErrNoRecognizer
	}
	blocks, err := h.OCR.Recognize(ctx, jpeg)
	if err != nil {
		return nil, fmt.Errorf("ocr: %w", err)
	}
	if len(blocks) == 0 {
		return nil, nil
	}
	if h.Grouper != nil {
		cands, err := h.Grouper.Group(ctx, blocks)
		if err == nil {
			return cands, nil
		}
		zerolog.Ctx(ctx).Warn().Err(err).Msg("layout grouping failed, falling back to heuristic segmentation")
	}
	cands, unassigned := h.Segmenter.Segment(blocks)
	zerolog.Ctx(ctx).Debug().
		Int("blocks", len(blocks)).
		Int("articles", len(cands)).
		Int("unassigned", len(unassigned)).
		Msg("heuristic image segmentation")
	return cands, nil
}
