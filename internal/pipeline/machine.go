package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/local/newsdigest/internal/article"
	"github.com/local/newsdigest/internal/classify"
	"github.com/local/newsdigest/internal/metrics"
)

// DocumentExtractor produces all article candidates of a document. pages is
// the page count when the caller already knows it, otherwise 0.
type DocumentExtractor interface {
	ExtractDocument(ctx context.Context, path string, pages int) ([]article.Candidate, error)
}

// TopicClusterer returns one topic id per article.
type TopicClusterer interface {
	Assign(ctx context.Context, articles []article.Candidate) []string
}

// SearchIndex accepts a run's finished articles.
type SearchIndex interface {
	Index(ctx context.Context, runID string, articles []article.Candidate) error
}

// Machine runs Extraction, ParallelClassification, Clustering and Indexing
// in order. Any stage that sets State.Err routes the run to Failed.
type Machine struct {
	Extractor   DocumentExtractor
	Departments classify.DepartmentClassifier
	Sentiment   classify.SentimentClassifier
	Clusterer   TopicClusterer
	Index       SearchIndex // optional
	// ClassifyLimit bounds concurrent classifier calls per pass; 0 is unbounded.
	ClassifyLimit int
	// OnStage, when set, is called before each stage runs and on the
	// terminal state.
	OnStage func(ctx context.Context, st State)
}

// Input names the document a run works on.
type Input struct {
	RunID      string
	DocumentID string
	Path       string
	Pages      int // 0 if unknown
}

// Run drives one document to Done or Failed. The machine adds no retries
// or timeouts of its own.
func (m *Machine) Run(ctx context.Context, in Input) State {
	st := State{RunID: in.RunID, DocumentID: in.DocumentID, SourcePath: in.Path, PageCount: in.Pages, Stage: StageExtraction}
	l := zerolog.Ctx(ctx)
	for !st.Stage.Terminal() {
		m.notify(ctx, st)
		start := time.Now()
		stage := st.Stage
		st = m.step(ctx, st)
		metrics.ObserveStage(string(stage), time.Since(start))
		st.Stage = next(stage, st)
		l.Debug().Str("stage", string(stage)).Str("next", string(st.Stage)).Msg("stage complete")
	}
	m.notify(ctx, st)
	if st.Stage == StageFailed {
		metrics.IncRun("failed")
		l.Error().Err(st.Err).Msg("pipeline run failed")
	} else {
		metrics.IncRun("done")
		l.Info().Int("articles", len(st.Articles)).Msg("pipeline run complete")
	}
	return st
}

func (m *Machine) notify(ctx context.Context, st State) {
	if m.OnStage != nil {
		m.OnStage(ctx, st)
	}
}

// next is the edge function. Err wins regardless of which stage set it.
func next(stage Stage, st State) Stage {
	if st.Err != nil {
		return StageFailed
	}
	switch stage {
	case StageExtraction:
		return StageClassification
	case StageClassification:
		return StageClustering
	case StageClustering:
		return StageIndexing
	case StageIndexing:
		return StageDone
	}
	return stage
}

func (m *Machine) step(ctx context.Context, st State) State {
	switch st.Stage {
	case StageExtraction:
		return m.extract(ctx, st)
	case StageClassification:
		return m.classify(ctx, st)
	case StageClustering:
		return m.cluster(ctx, st)
	case StageIndexing:
		return m.index(ctx, st)
	}
	st.Err = &StageError{Stage: st.Stage, Err: fmt.Errorf("unknown stage %q", st.Stage)}
	return st
}

func (m *Machine) extract(ctx context.Context, st State) (out State) {
	out = st
	defer func() {
		if r := recover(); r != nil {
			out.Err = &StageError{Stage: StageExtraction, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	arts, err := m.Extractor.ExtractDocument(ctx, st.SourcePath, st.PageCount)
	if err != nil {
		out.Err = &StageError{Stage: StageExtraction, Err: err}
		return out
	}
	out.Articles = arts
	return out
}

func (m *Machine) classify(ctx context.Context, st State) State {
	snapshot := st.Articles
	var (
		wg    sync.WaitGroup
		depts []classify.DepartmentUpdate
		sents []classify.SentimentUpdate
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		depts = classify.DepartmentPass(ctx, m.Departments, snapshot, m.ClassifyLimit)
	}()
	go func() {
		defer wg.Done()
		sents = classify.SentimentPass(ctx, m.Sentiment, snapshot, m.ClassifyLimit)
	}()
	wg.Wait()
	st.Articles = classify.Merge(snapshot, depts, sents)
	return st
}

func (m *Machine) cluster(ctx context.Context, st State) State {
	ids := m.Clusterer.Assign(ctx, st.Articles)
	if len(ids) != len(st.Articles) {
		st.Err = &StageError{Stage: StageClustering, Err: errors.New("cluster ids do not match articles")}
		return st
	}
	arts := make([]article.Candidate, len(st.Articles))
	copy(arts, st.Articles)
	for i := range arts {
		arts[i].TopicClusterID = ids[i]
	}
	st.Articles = arts
	return st
}

func (m *Machine) index(ctx context.Context, st State) State {
	if m.Index == nil || len(st.Articles) == 0 {
		return st
	}
	if err := m.Index.Index(ctx, st.RunID, st.Articles); err != nil {
		metrics.IncIndexFailure()
		zerolog.Ctx(ctx).Warn().Err(err).Msg("search indexing failed, run continues")
	}
	return st
}

// WithObserver returns a copy of m that reports stage transitions to fn.
func (m *Machine) WithObserver(fn func(ctx context.Context, st State)) *Machine {
	c := *m
	c.OnStage = fn
	return &c
}
