package extractor

import "unicode/utf8"

// Strategy is the per-page processing path.
type Strategy int

const (
	UseVisual Strategy = iota
	UseDigital
)

func (s Strategy) String() string {
	if s == UseDigital {
		return "digital"
	}
	return "visual"
}

// Selector is a coarser gate than the tier thresholds, applied before
// committing to either the digital or the visual path.
type Selector struct {
	MinTextLength int
	MaxRatio      float64
}

// DefaultSelector returns the stock thresholds.
func DefaultSelector() Selector {
	return Selector{MinTextLength: 100, MaxRatio: 0.20}
}

// Choose picks UseDigital only for accepted, long enough text whose last
// attempt ratio is within MaxRatio.
func (s Selector) Choose(r Result) Strategy {
	if r.Method == MethodVisionNeeded || r.Text == "" {
		return UseVisual
	}
	if utf8.RuneCountInString(r.Text) <= s.MinTextLength {
		return UseVisual
	}
	ratio, ok := r.LastRatio()
	if !ok || ratio > s.MaxRatio {
		return UseVisual
	}
	return UseDigital
}
