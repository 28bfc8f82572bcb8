package classify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/local/newsdigest/internal/ai"
	"github.com/local/newsdigest/internal/article"
)

// DepartmentClassifier assigns one department to an article.
type DepartmentClassifier interface {
	Department(ctx context.Context, c article.Candidate) (string, error)
}

// SentimentClassifier labels an article Positive, Negative or Neutral.
type SentimentClassifier interface {
	Sentiment(ctx context.Context, c article.Candidate) (label string, confidence float64, err error)
}

// ModelDepartments adapts the model classifier to the catalogue.
type ModelDepartments struct {
	Model *ai.Classifier
}

func (m ModelDepartments) Department(ctx context.Context, c article.Candidate) (string, error) {
	raw, err := m.Model.Department(ctx, c, Departments)
	if err != nil {
		return "", err
	}
	return MatchDepartment(raw), nil
}

// DepartmentUpdate is the department pass's output for one article.
type DepartmentUpdate struct {
	Index      int
	Department string
}

// SentimentUpdate is the sentiment pass's output for one article.
type SentimentUpdate struct {
	Index      int
	Label      string
	Confidence float64
}

// DepartmentPass classifies every article. A failed article gets
// DefaultDepartment. The input slice is only read.
func DepartmentPass(ctx context.Context, cls DepartmentClassifier, articles []article.Candidate, limit int) []DepartmentUpdate {
	out := make([]DepartmentUpdate, len(articles))
	runEach(ctx, len(articles), limit, func(ctx context.Context, i int) {
		dept, err := safeDepartment(ctx, cls, articles[i])
		if err != nil || dept == "" {
			zerolog.Ctx(ctx).Warn().Err(err).Str("article_id", articles[i].ID).Msg("department classification failed, using default")
			dept = DefaultDepartment
		}
		out[i] = DepartmentUpdate{Index: i, Department: dept}
	})
	return out
}

// SentimentPass labels every article. A failed article falls back to the
// keyword heuristic.
func SentimentPass(ctx context.Context, cls SentimentClassifier, articles []article.Candidate, limit int) []SentimentUpdate {
	out := make([]SentimentUpdate, len(articles))
	runEach(ctx, len(articles), limit, func(ctx context.Context, i int) {
		label, conf, err := safeSentiment(ctx, cls, articles[i])
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("article_id", articles[i].ID).Msg("sentiment analysis failed, using keyword heuristic")
			label, conf = keywordSentiment(articles[i].Headline + " " + articles[i].Body)
		}
		out[i] = SentimentUpdate{Index: i, Label: label, Confidence: conf}
	})
	return out
}

// Merge returns a copy of articles with both passes' updates applied.
func Merge(articles []article.Candidate, depts []DepartmentUpdate, sents []SentimentUpdate) []article.Candidate {
	out := make([]article.Candidate, len(articles))
	copy(out, articles)
	for _, u := range depts {
		if u.Index >= 0 && u.Index < len(out) {
			out[u.Index].Department = u.Department
		}
	}
	for _, u := range sents {
		if u.Index >= 0 && u.Index < len(out) {
			out[u.Index].SentimentLabel = u.Label
			out[u.Index].SentimentConfidence = u.Confidence
		}
	}
	return out
}

func runEach(ctx context.Context, n, limit int, fn func(context.Context, int)) {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			fn(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

func safeDepartment(ctx context.Context, cls DepartmentClassifier, c article.Candidate) (dept string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("department classifier panic: %v", r)
		}
	}()
	return cls.Department(ctx, c)
}

func safeSentiment(ctx context.Context, cls SentimentClassifier, c article.Candidate) (label string, conf float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sentiment classifier panic: %v", r)
		}
	}()
	return cls.Sentiment(ctx, c)
}
