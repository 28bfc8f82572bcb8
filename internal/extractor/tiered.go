package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/local/newsdigest/internal/metrics"
	"github.com/local/newsdigest/internal/textquality"
)

// Tier pairs a backend with its acceptance threshold.
type Tier struct {
	Backend  Backend
	MaxRatio float64
}

// Result is the verdict for one page.
type Result struct {
	Text     string
	Method   Method
	Attempts []Attempt
}

// LastRatio returns the corruption ratio of the last scored attempt.
func (r Result) LastRatio() (float64, bool) {
	if len(r.Attempts) == 0 {
		return 0, false
	}
	return r.Attempts[len(r.Attempts)-1].Ratio, true
}

// Extractor walks its tiers in trust order and stops at the first backend
// whose output passes the quality gate.
type Extractor struct {
	tiers  []Tier
	scorer *textquality.Scorer
}

// New builds an extractor. Tiers are tried in the order given.
func New(scorer *textquality.Scorer, tiers ...Tier) *Extractor {
	return &Extractor{tiers: tiers, scorer: scorer}
}

// Tiers returns the configured tier names in order.
func (e *Extractor) Tiers() []string {
	names := make([]string, len(e.tiers))
	for i, t := range e.tiers {
		names[i] = t.Backend.Name()
	}
	return names
}

// ExtractPage returns normalised text from the first acceptable tier. A tier
// is acceptable when its ratio is at most MaxRatio and it produced no
// replacement characters. Backend errors and blank output move on to the next
// tier without an attempt record. When every tier is exhausted the result is
// empty with MethodVisionNeeded; that is not an error.
func (e *Extractor) ExtractPage(ctx context.Context, sess *Session, pageIndex int) Result {
	l := zerolog.Ctx(ctx).With().Int("page", pageIndex+1).Logger()
	res := Result{Method: MethodVisionNeeded}

	for _, tier := range e.tiers {
		name := tier.Backend.Name()
		if err := ctx.Err(); err != nil {
			l.Warn().Err(err).Str("backend", name).Msg("extraction cancelled")
			break
		}

		text, err := e.try(ctx, tier.Backend, sess, pageIndex)
		if err != nil {
			result := "error"
			if errors.Is(err, ErrNoText) {
				result = "empty"
			}
			metrics.ObserveAttempt(name, result)
			l.Debug().Err(err).Str("backend", name).Msg("backend produced no usable text")
			continue
		}

		ratio, bad := e.scorer.Score(text)
		res.Attempts = append(res.Attempts, Attempt{
			Backend:       name,
			Ratio:         ratio,
			Irrecoverable: bad,
			Chars:         utf8.RuneCountInString(text),
		})
		metrics.ObserveRatio(name, ratio)

		if ratio <= tier.MaxRatio && bad == 0 {
			metrics.ObserveAttempt(name, "accepted")
			l.Debug().Str("backend", name).Float64("ratio", ratio).Msg("text layer accepted")
			res.Text = textquality.Normalize(text)
			res.Method = Method(name)
			return res
		}

		metrics.ObserveAttempt(name, "rejected")
		l.Info().
			Str("backend", name).
			Float64("ratio", ratio).
			Float64("max_ratio", tier.MaxRatio).
			Int("irrecoverable", bad).
			Str("sample", sample(text, 50)).
			Msg("text layer looks corrupt, escalating")
	}

	l.Info().Int("attempts", len(res.Attempts)).Msg("all text tiers exhausted, vision needed")
	return res
}

// try runs one backend, turning panics and blank output into errors.
func (e *Extractor) try(ctx context.Context, b Backend, sess *Session, pageIndex int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%s panic: %v", b.Name(), r)
		}
	}()
	text, err = b.Extract(ctx, sess, pageIndex)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}

func sample(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
