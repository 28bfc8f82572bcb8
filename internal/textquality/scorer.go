// Package textquality scores extracted text against an expected-script
// allow-list and normalises it for downstream use.
package textquality

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ReplacementChar marks an irrecoverable decode failure.
const ReplacementChar = '\uFFFD'

// TeluguBlock is the default target script range.
var TeluguBlock = &unicode.RangeTable{R16: []unicode.Range16{{Lo: 0x0C00, Hi: 0x0C7F, Stride: 1}}}

// punctuation accepted in newspaper text regardless of script, including the
// zero-width joiners Indic scripts rely on and the general punctuation block
// used for typographic quotes and dashes.
var punctuation = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: '!', Hi: '!', Stride: 1},
		{Lo: '"', Hi: '%', Stride: 1},  // " # $ %
		{Lo: '\'', Hi: '/', Stride: 1}, // ' ( ) * + , - . /
		{Lo: ':', Hi: ';', Stride: 1},
		{Lo: '=', Hi: '=', Stride: 1},
		{Lo: '?', Hi: '@', Stride: 1},
		{Lo: '[', Hi: ']', Stride: 1}, // [ \ ]
		{Lo: '_', Hi: '_', Stride: 1},
		{Lo: '{', Hi: '}', Stride: 1},       // { | }
		{Lo: 0x00AB, Hi: 0x00AB, Stride: 1}, // «
		{Lo: 0x00BB, Hi: 0x00BB, Stride: 1}, // »
		{Lo: 0x200B, Hi: 0x200D, Stride: 1},
		{Lo: 0x2010, Hi: 0x201F, Stride: 1},
	},
}

// Alphabet is the allow-list a Scorer checks text against.
type Alphabet struct {
	scripts []*unicode.RangeTable
}

// NewAlphabet builds an allow-list from target script tables. With no tables
// the Telugu block is used.
func NewAlphabet(scripts ...*unicode.RangeTable) Alphabet {
	if len(scripts) == 0 {
		scripts = []*unicode.RangeTable{TeluguBlock}
	}
	return Alphabet{scripts: scripts}
}

// ParseRanges turns "0C00-0C7F,0900-097F" into range tables.
func ParseRanges(ranges string) ([]*unicode.RangeTable, error) {
	var tables []*unicode.RangeTable
	for _, part := range strings.Split(ranges, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		loS, hiS, ok := strings.Cut(part, "-")
		if !ok {
			hiS = loS
		}
		lo, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(loS), "U+"), 16, 32)
		if err != nil {
			return nil, fmt.Errorf("script range %q: %w", part, err)
		}
		hi, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(hiS), "U+"), 16, 32)
		if err != nil {
			return nil, fmt.Errorf("script range %q: %w", part, err)
		}
		if hi < lo {
			return nil, fmt.Errorf("script range %q: upper bound below lower bound", part)
		}
		t := &unicode.RangeTable{}
		if hi <= 0xFFFF {
			t.R16 = []unicode.Range16{{Lo: uint16(lo), Hi: uint16(hi), Stride: 1}}
		} else {
			t.R32 = []unicode.Range32{{Lo: uint32(lo), Hi: uint32(hi), Stride: 1}}
		}
		tables = append(tables, t)
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("no script ranges in %q", ranges)
	}
	return tables, nil
}

// Allows reports whether r is in the allow-list.
func (a Alphabet) Allows(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case unicode.IsSpace(r):
		return true
	case unicode.Is(punctuation, r):
		return true
	}
	for _, t := range a.scripts {
		if unicode.Is(t, r) {
			return true
		}
	}
	return false
}

// Scorer computes the corruption metric for extracted text.
type Scorer struct {
	alphabet Alphabet
}

// NewScorer returns a Scorer over the given alphabet.
func NewScorer(a Alphabet) *Scorer {
	return &Scorer{alphabet: a}
}

// Score returns the share of runes outside the allow-list and the number of
// U+FFFD replacement characters. Empty text scores 1.0.
func (s *Scorer) Score(text string) (ratio float64, irrecoverable int) {
	if text == "" {
		return 1.0, 0
	}
	var total, bad int
	for _, r := range text {
		total++
		if r == ReplacementChar {
			irrecoverable++
		}
		if !s.alphabet.Allows(r) {
			bad++
		}
	}
	return float64(bad) / float64(total), irrecoverable
}

// Normalize strips zero-width and control characters, maps non-breaking
// spaces to plain spaces and applies NFKC. Newlines and tabs pass through.
// Stripping happens before NFKC so that removed joiners cannot leave
// uncomposed sequences behind. NFKC is re-applied until the text stops
// changing: a few supplementary-plane compatibility characters followed by
// a combining mark need a second pass, and Normalize must be idempotent.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t':
			return r
		case '\u00A0', '\u202F', '\u2007':
			return ' '
		case '\u200B', '\u200C', '\u200D', '\u2060', '\uFEFF':
			return -1
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	out := norm.NFKC.String(stripped)
	for i := 0; i < maxNFKCPasses; i++ {
		again := norm.NFKC.String(out)
		if again == out {
			break
		}
		out = again
	}
	return out
}

const maxNFKCPasses = 4
