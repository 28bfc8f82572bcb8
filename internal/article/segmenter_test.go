package article

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func block(text string, page int, y, h float64) TextBlock {
	return TextBlock{Text: text, Confidence: 0.9, PageIndex: page, Box: BoundingBox{X: 10, Y: y, Width: 300, Height: h}}
}

func TestIsHeadline(t *testing.T) {
	s := DefaultSegmenter()
	mean := 10.0
	cases := []struct {
		name string
		b    TextBlock
		want bool
	}{
		{"tall upper length 10", block("Headlines!", 0, 0, 16), true},
		{"not tall enough", block("Headlines!", 0, 0, 15), false},
		{"lower-case start", block("headlines!", 0, 0, 30), false},
		{"too short", block("Short", 0, 0, 30), false},
		{"too long", block("L"+strings.Repeat("o", 149), 0, 0, 30), false},
		{"digit start", block("2024 Budget", 0, 0, 30), false},
	}
	for _, c := range cases {
		if got := s.IsHeadline(c.b, mean); got != c.want {
			t.Fatalf("%s: got %v want %v", c.name, got, c.want)
		}
	}
}

func TestSegmentBasic(t *testing.T) {
	s := DefaultSegmenter()
	body := strings.Repeat("word ", 15) // 74 runes trimmed
	blocks := []TextBlock{
		block("Orphan line before any headline", 0, 5, 10),
		block("First Headline", 0, 10, 30),
		block(body, 0, 20, 10),
		block(body, 0, 30, 10),
		block("Second Headline", 0, 40, 30),
		block(body, 0, 50, 10),
	}
	arts, unassigned := s.Segment(blocks)
	if len(arts) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(arts))
	}
	if arts[0].Headline != "First Headline" || arts[1].Headline != "Second Headline" {
		t.Fatalf("unexpected headlines: %q, %q", arts[0].Headline, arts[1].Headline)
	}
	if arts[0].Confidence != ConfidenceHeuristic || arts[0].Source != SourceHeuristic {
		t.Fatalf("unexpected provenance: %+v", arts[0])
	}
	if len(arts[0].Segments) != 3 {
		t.Fatalf("expected headline plus two body segments, got %d", len(arts[0].Segments))
	}
	if len(unassigned) != 1 || unassigned[0].Text != "Orphan line before any headline" {
		t.Fatalf("unexpected unassigned: %+v", unassigned)
	}
}

func TestSegmentDropsShortBody(t *testing.T) {
	s := DefaultSegmenter()
	short := strings.Repeat("x", 40)
	blocks := []TextBlock{
		block("Filler one", 0, 0, 10),
		block("Filler two", 0, 1, 10),
		block("Short Story", 0, 10, 40),
		block(short, 0, 20, 10),
	}
	arts, unassigned := s.Segment(blocks)
	if len(arts) != 0 {
		t.Fatalf("article with 40-rune body should be dropped, got %+v", arts)
	}
	for _, u := range unassigned {
		if u.Text == short {
			t.Fatal("dropped body must not be reported as unassigned")
		}
	}
	if len(unassigned) != 2 {
		t.Fatalf("expected the two leading fillers unassigned, got %d", len(unassigned))
	}
}

func TestSegmentReadingOrder(t *testing.T) {
	s := DefaultSegmenter()
	body := strings.Repeat("b", 60)
	blocks := []TextBlock{
		block(body, 1, 20, 10),
		block("Page Two Lead", 1, 10, 40),
		block(body, 0, 20, 10),
		block("Page One Lead", 0, 10, 40),
	}
	arts, _ := s.Segment(blocks)
	if len(arts) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(arts))
	}
	if arts[0].Headline != "Page One Lead" || arts[0].PageIndex != 0 {
		t.Fatalf("first article out of order: %+v", arts[0])
	}
	if arts[1].Headline != "Page Two Lead" || arts[1].PageIndex != 1 {
		t.Fatalf("second article out of order: %+v", arts[1])
	}
}

func TestSegmentEmpty(t *testing.T) {
	arts, unassigned := DefaultSegmenter().Segment(nil)
	if arts != nil || unassigned != nil {
		t.Fatal("expected nil results for no blocks")
	}
}

func TestSyntheticBlocks(t *testing.T) {
	text := "STATE BUDGET\n\n  Farmers Get New Scheme  \nthe government announced a plan today.\n"
	blocks := SyntheticBlocks(text, 3)
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	if blocks[0].Box.Height != 20 || blocks[1].Box.Height != 20 {
		t.Fatalf("header-like lines should be tall: %+v", blocks[:2])
	}
	if blocks[2].Box.Height != 10 {
		t.Fatalf("body line should be short: %+v", blocks[2])
	}
	for i, b := range blocks {
		if b.PageIndex != 3 || b.Box.Y != float64(i) {
			t.Fatalf("block %d has wrong position: %+v", i, b)
		}
	}
}

func TestNewCandidate(t *testing.T) {
	if _, err := NewCandidate("   ", strings.Repeat("a", 40), 0.9, SourceModelText, nil); !errors.Is(err, ErrEmptyHeadline) {
		t.Fatalf("expected ErrEmptyHeadline, got %v", err)
	}
	if _, err := NewCandidate("Title", strings.Repeat("a", MinBodyLength), 0.9, SourceModelText, nil); !errors.Is(err, ErrShortBody) {
		t.Fatalf("expected ErrShortBody, got %v", err)
	}
	c, err := NewCandidate(" Title ", " "+strings.Repeat("a", MinBodyLength+1)+" ", 0.9, SourceModelText, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Headline != "Title" || c.ID == "" {
		t.Fatalf("unexpected candidate: %+v", c)
	}
}

type fakeOCR struct {
	blocks []TextBlock
	err    error
}

func (f fakeOCR) Recognize(context.Context, []byte) ([]TextBlock, error) { return f.blocks, f.err }

type fakeGrouper struct {
	cands []Candidate
	err   error
	calls int
}

func (f *fakeGrouper) Group(context.Context, []TextBlock) ([]Candidate, error) {
	f.calls++
	return f.cands, f.err
}

func TestHeuristicReconstructorFromText(t *testing.T) {
	h := NewHeuristicReconstructor(DefaultSegmenter(), nil, nil)
	text := "Chief Minister Opens Bridge\n" +
		strings.Repeat("the new bridge connects two districts and eases traffic. ", 2) + "\n" +
		"more details were shared by officials at the event.\n" +
		"work on the approach roads will finish next month.\n"
	cands, err := h.FromText(context.Background(), text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 1 || cands[0].Headline != "Chief Minister Opens Bridge" {
		t.Fatalf("unexpected candidates: %+v", cands)
	}
}

func TestHeuristicReconstructorFromImage(t *testing.T) {
	body := strings.Repeat("c", 60)
	ocr := fakeOCR{blocks: []TextBlock{block("Flood Warning Issued", 0, 0, 30), block(body, 0, 10, 10), block(body, 0, 20, 10)}}

	if _, err := NewHeuristicReconstructor(DefaultSegmenter(), nil, nil).FromImage(context.Background(), nil); !errors.Is(err, ErrNoRecognizer) {
		t.Fatalf("expected ErrNoRecognizer, got %v", err)
	}

	g := &fakeGrouper{err: errors.New("model down")}
	cands, err := NewHeuristicReconstructor(DefaultSegmenter(), ocr, g).FromImage(context.Background(), []byte{1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.calls != 1 || len(cands) != 1 || cands[0].Source != SourceHeuristic {
		t.Fatalf("expected heuristic fallback after grouper failure, got %+v", cands)
	}

	grouped := Candidate{Headline: "Grouped", Body: body, Source: SourceModelLayout, Confidence: ConfidenceModelLayout}
	g = &fakeGrouper{cands: []Candidate{grouped}}
	cands, err = NewHeuristicReconstructor(DefaultSegmenter(), ocr, g).FromImage(context.Background(), []byte{1})
	if err != nil || len(cands) != 1 || cands[0].Source != SourceModelLayout {
		t.Fatalf("expected grouped result, got %+v (%v)", cands, err)
	}

	failing := fakeOCR{err: errors.New("tesseract missing")}
	if _, err := NewHeuristicReconstructor(DefaultSegmenter(), failing, nil).FromImage(context.Background(), []byte{1}); err == nil {
		t.Fatal("expected OCR error to propagate")
	}
}
