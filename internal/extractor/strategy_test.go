package extractor

import (
	"strings"
	"testing"
)

func resultWith(text string, ratio float64) Result {
	return Result{Text: text, Method: MethodFitz, Attempts: []Attempt{{Backend: "fitz", Ratio: ratio}}}
}

func TestSelectorChoose(t *testing.T) {
	s := DefaultSelector()
	cases := []struct {
		name string
		res  Result
		want Strategy
	}{
		{"long clean", resultWith(strings.Repeat("a", 150), 0.15), UseDigital},
		{"long corrupt", resultWith(strings.Repeat("a", 150), 0.25), UseVisual},
		{"short clean", resultWith(strings.Repeat("a", 50), 0.0), UseVisual},
		{"boundary length", resultWith(strings.Repeat("a", s.MinTextLength), 0.0), UseVisual},
		{"boundary ratio", resultWith(strings.Repeat("a", 150), s.MaxRatio), UseDigital},
		{"vision needed", Result{Text: strings.Repeat("a", 150), Method: MethodVisionNeeded}, UseVisual},
		{"empty text", resultWith("", 0.0), UseVisual},
		{"no attempts", Result{Text: strings.Repeat("a", 150), Method: MethodFitz}, UseVisual},
	}
	for _, c := range cases {
		if got := s.Choose(c.res); got != c.want {
			t.Fatalf("%s: got %s want %s", c.name, got, c.want)
		}
	}
}

func TestSelectorUsesLastAttempt(t *testing.T) {
	res := Result{
		Text:   strings.Repeat("a", 150),
		Method: MethodLayout,
		Attempts: []Attempt{
			{Backend: "fitz", Ratio: 0.9},
			{Backend: "layout", Ratio: 0.05},
		},
	}
	if DefaultSelector().Choose(res) != UseDigital {
		t.Fatal("earlier rejected attempts must not influence the decision")
	}
}

func TestSelectorCountsRunes(t *testing.T) {
	// 60 Telugu runes is well over 100 bytes but under the rune threshold
	res := resultWith(strings.Repeat("తె", 30), 0.0)
	if DefaultSelector().Choose(res) != UseVisual {
		t.Fatal("length gate must count runes, not bytes")
	}
}
