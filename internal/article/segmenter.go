package article

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Segmenter groups positioned blocks into articles by font-size heuristics.
type Segmenter struct {
	// HeightFactor is the multiple of the mean block height a headline must exceed.
	HeightFactor float64
	// Headline rune length must be strictly between these bounds.
	MinHeadlineLength int
	MaxHeadlineLength int
	// MinBodyLength is the accumulated body rune count an article must exceed
	// to be emitted.
	MinBodyLength int
}

// DefaultSegmenter returns the stock thresholds.
func DefaultSegmenter() Segmenter {
	return Segmenter{
		HeightFactor:      1.5,
		MinHeadlineLength: 5,
		MaxHeadlineLength: 150,
		MinBodyLength:     50,
	}
}

// IsHeadline reports whether b reads as a headline given the mean block height.
func (s Segmenter) IsHeadline(b TextBlock, meanHeight float64) bool {
	text := strings.TrimSpace(b.Text)
	if b.Box.Height <= s.HeightFactor*meanHeight {
		return false
	}
	first, _ := utf8.DecodeRuneInString(text)
	if !unicode.IsUpper(first) {
		return false
	}
	n := utf8.RuneCountInString(text)
	return n > s.MinHeadlineLength && n < s.MaxHeadlineLength
}

type draft struct {
	headline TextBlock
	body     []TextBlock
}

func (d *draft) bodyText() string {
	parts := make([]string, 0, len(d.body))
	for _, b := range d.body {
		if t := strings.TrimSpace(b.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Segment walks blocks in reading order. A headline opens an article and
// closes the previous one; articles whose body does not exceed MinBodyLength
// are dropped. Body blocks before the first headline are returned as
// unassigned.
func (s Segmenter) Segment(blocks []TextBlock) (articles []Candidate, unassigned []TextBlock) {
	if len(blocks) == 0 {
		return nil, nil
	}
	sorted := make([]TextBlock, len(blocks))
	copy(sorted, blocks)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.PageIndex != b.PageIndex {
			return a.PageIndex < b.PageIndex
		}
		if a.Box.Y != b.Box.Y {
			return a.Box.Y < b.Box.Y
		}
		return a.Box.X < b.Box.X
	})

	var total float64
	for _, b := range sorted {
		total += b.Box.Height
	}
	mean := total / float64(len(sorted))

	var cur *draft
	flush := func() {
		if cur == nil {
			return
		}
		body := cur.bodyText()
		if utf8.RuneCountInString(body) <= s.MinBodyLength {
			return
		}
		segs := append([]TextBlock{cur.headline}, cur.body...)
		c, err := NewCandidate(cur.headline.Text, body, ConfidenceHeuristic, SourceHeuristic, segs)
		if err != nil {
			return
		}
		c.PageIndex = cur.headline.PageIndex
		articles = append(articles, c)
	}

	for _, b := range sorted {
		if s.IsHeadline(b, mean) {
			flush()
			cur = &draft{headline: b}
			continue
		}
		if cur == nil {
			unassigned = append(unassigned, b)
			continue
		}
		cur.body = append(cur.body, b)
	}
	flush()
	return articles, unassigned
}

// SyntheticBlocks turns a text layer into one block per non-empty line.
// Short upper-case or title-case lines get a taller box so the segmenter
// can pick them out as headlines.
func SyntheticBlocks(text string, pageIndex int) []TextBlock {
	var blocks []TextBlock
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		h := 10.0
		if utf8.RuneCountInString(line) < 100 && (isUpperLine(line) || isTitleLine(line)) {
			h = 20
		}
		blocks = append(blocks, TextBlock{
			Text:       line,
			Confidence: 1.0,
			Box:        BoundingBox{X: 0, Y: float64(len(blocks)), Width: 100, Height: h},
			PageIndex:  pageIndex,
		})
	}
	return blocks
}

// isUpperLine: at least one cased rune and no lower-case runes.
func isUpperLine(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) || unicode.IsTitle(r) {
			cased = true
		}
	}
	return cased
}

// isTitleLine: every cased word starts with an upper-case rune followed only
// by lower-case runes.
func isTitleLine(s string) bool {
	cased, prevCased := false, false
	for _, r := range s {
		switch {
		case unicode.IsUpper(r) || unicode.IsTitle(r):
			if prevCased {
				return false
			}
			prevCased, cased = true, true
		case unicode.IsLower(r):
			if !prevCased {
				return false
			}
			prevCased, cased = true, true
		default:
			prevCased = false
		}
	}
	return cased
}
