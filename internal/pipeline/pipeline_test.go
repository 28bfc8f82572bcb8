package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/local/newsdigest/internal/article"
	"github.com/local/newsdigest/internal/classify"
	"github.com/local/newsdigest/internal/extractor"
)

func TestFanOutOrderAndIsolation(t *testing.T) {
	got := FanOut(context.Background(), 5, 0, func(_ context.Context, page int) ([]string, error) {
		switch page {
		case 2:
			return nil, errors.New("page broke")
		case 4:
			panic("renderer crashed")
		}
		return []string{fmt.Sprintf("p%d-a", page), fmt.Sprintf("p%d-b", page)}, nil
	})
	want := "p0-a p0-b p1-a p1-b p3-a p3-b"
	if strings.Join(got, " ") != want {
		t.Fatalf("got %v, want %s", got, want)
	}
}

func TestFanOutLimit(t *testing.T) {
	var inflight, peak atomic.Int32
	FanOut(context.Background(), 20, 3, func(_ context.Context, page int) ([]int, error) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		defer inflight.Add(-1)
		return []int{page}, nil
	})
	if peak.Load() > 3 {
		t.Fatalf("limit exceeded: %d", peak.Load())
	}
}

// fakes

type fakeText struct {
	results map[int]extractor.Result
}

func (f *fakeText) ExtractPage(_ context.Context, _ *extractor.Session, i int) extractor.Result {
	if r, ok := f.results[i]; ok {
		return r
	}
	return extractor.Result{Method: extractor.MethodVisionNeeded}
}

type fakeRenderer struct{ calls atomic.Int32 }

func (f *fakeRenderer) RenderPage(context.Context, *extractor.Session, int) ([]byte, error) {
	f.calls.Add(1)
	return []byte("jpeg"), nil
}

type fakeReconstructor struct {
	textErr   error
	textCalls atomic.Int32
	imgCalls  atomic.Int32
}

func cand(t *testing.T, headline string, src article.Source) article.Candidate {
	t.Helper()
	c, err := article.NewCandidate(headline, "A body long enough to pass the minimum length.", 0.95, src, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func (f *fakeReconstructor) FromText(context.Context, string) ([]article.Candidate, error) {
	f.textCalls.Add(1)
	if f.textErr != nil {
		return nil, f.textErr
	}
	c, _ := article.NewCandidate("From text", "A body long enough to pass the minimum length.", 0.95, article.SourceModelText, nil)
	return []article.Candidate{c}, nil
}

func (f *fakeReconstructor) FromImage(context.Context, []byte) ([]article.Candidate, error) {
	f.imgCalls.Add(1)
	c, _ := article.NewCandidate("From image", "A body long enough to pass the minimum length.", 0.95, article.SourceModelVision, nil)
	return []article.Candidate{c}, nil
}

func digitalResult() extractor.Result {
	return extractor.Result{
		Text:     strings.Repeat("digital text ", 20),
		Method:   extractor.MethodFitz,
		Attempts: []extractor.Attempt{{Backend: "fitz", Ratio: 0.01}},
	}
}

func TestProcessPageDigital(t *testing.T) {
	rec := &fakeReconstructor{}
	rend := &fakeRenderer{}
	p := &PageProcessor{
		Text:          &fakeText{results: map[int]extractor.Result{3: digitalResult()}},
		Selector:      extractor.DefaultSelector(),
		Renderer:      rend,
		Reconstructor: rec,
	}
	cands, err := p.ProcessPage(context.Background(), extractor.NewSession("x.pdf", 5), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 || cands[0].Headline != "From text" || cands[0].PageIndex != 3 {
		t.Fatalf("unexpected candidates: %+v", cands)
	}
	if rend.calls.Load() != 0 || rec.imgCalls.Load() != 0 {
		t.Fatal("digital page should not be rendered")
	}
}

func TestProcessPageDigitalFallsBackOnce(t *testing.T) {
	rec := &fakeReconstructor{textErr: errors.New("malformed")}
	rend := &fakeRenderer{}
	p := &PageProcessor{
		Text:          &fakeText{results: map[int]extractor.Result{0: digitalResult()}},
		Selector:      extractor.DefaultSelector(),
		Renderer:      rend,
		Reconstructor: rec,
	}
	cands, err := p.ProcessPage(context.Background(), extractor.NewSession("x.pdf", 1), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 || cands[0].Headline != "From image" {
		t.Fatalf("expected visual fallback, got %+v", cands)
	}
	if rec.textCalls.Load() != 1 || rec.imgCalls.Load() != 1 || rend.calls.Load() != 1 {
		t.Fatalf("expected one call each, got text=%d img=%d render=%d",
			rec.textCalls.Load(), rec.imgCalls.Load(), rend.calls.Load())
	}
}

func TestProcessPageVisual(t *testing.T) {
	rec := &fakeReconstructor{}
	p := &PageProcessor{
		Text:          &fakeText{},
		Selector:      extractor.DefaultSelector(),
		Renderer:      &fakeRenderer{},
		Reconstructor: rec,
	}
	cands, err := p.ProcessPage(context.Background(), extractor.NewSession("x.pdf", 2), 1)
	if err != nil {
		t.Fatal(err)
	}
	if rec.textCalls.Load() != 0 || len(cands) != 1 || cands[0].PageIndex != 1 {
		t.Fatalf("expected visual path only: %+v", cands)
	}
}

// brokenPageText panics for one page to exercise per-page isolation.
type brokenPageText struct{ bad int }

func (b brokenPageText) ExtractPage(_ context.Context, _ *extractor.Session, i int) extractor.Result {
	if i == b.bad {
		panic("corrupt page")
	}
	return digitalResult()
}

type pageTagReconstructor struct{}

func (pageTagReconstructor) FromText(context.Context, string) ([]article.Candidate, error) {
	c, _ := article.NewCandidate("Story", "A body long enough to pass the minimum length.", 0.95, article.SourceModelText, nil)
	return []article.Candidate{c}, nil
}

func (pageTagReconstructor) FromImage(context.Context, []byte) ([]article.Candidate, error) {
	return nil, errors.New("unused")
}

func TestExtractDocumentSkipsFailedPage(t *testing.T) {
	d := &DocumentProcessor{
		Pages: &PageProcessor{
			Text:          brokenPageText{bad: 2},
			Selector:      extractor.DefaultSelector(),
			Renderer:      &fakeRenderer{},
			Reconstructor: pageTagReconstructor{},
		},
		PageCount: func(string) (int, error) { return 5, nil },
	}
	arts, err := d.ExtractDocument(context.Background(), "x.pdf", 0)
	if err != nil {
		t.Fatal(err)
	}
	var pages []int
	for _, a := range arts {
		pages = append(pages, a.PageIndex)
	}
	if fmt.Sprint(pages) != "[0 1 3 4]" {
		t.Fatalf("expected pages [0 1 3 4] in order, got %v", pages)
	}
}

func TestExtractDocumentPageCountError(t *testing.T) {
	d := &DocumentProcessor{PageCount: func(string) (int, error) { return 0, errors.New("not a pdf") }}
	if _, err := d.ExtractDocument(context.Background(), "x", 0); err == nil {
		t.Fatal("expected error")
	}
}

func TestExtractDocumentUsesKnownPageCount(t *testing.T) {
	var counted atomic.Int32
	d := &DocumentProcessor{
		Pages: &PageProcessor{
			Text:          brokenPageText{bad: -1},
			Selector:      extractor.DefaultSelector(),
			Renderer:      &fakeRenderer{},
			Reconstructor: pageTagReconstructor{},
		},
		PageCount: func(string) (int, error) {
			counted.Add(1)
			return 9, nil
		},
	}
	arts, err := d.ExtractDocument(context.Background(), "x.pdf", 3)
	if err != nil {
		t.Fatal(err)
	}
	if counted.Load() != 0 {
		t.Fatal("page count was read again although the caller supplied it")
	}
	if len(arts) != 3 {
		t.Fatalf("expected one article per page for 3 pages, got %d", len(arts))
	}
}

// machine fakes

type fakeDocs struct {
	arts  []article.Candidate
	err   error
	panic bool
}

func (f fakeDocs) ExtractDocument(context.Context, string, int) ([]article.Candidate, error) {
	if f.panic {
		panic("boom")
	}
	return f.arts, f.err
}

type countingDepts struct{ calls atomic.Int32 }

func (c *countingDepts) Department(context.Context, article.Candidate) (string, error) {
	c.calls.Add(1)
	return "Energy", nil
}

type countingSentiment struct{ calls atomic.Int32 }

func (c *countingSentiment) Sentiment(context.Context, article.Candidate) (string, float64, error) {
	c.calls.Add(1)
	return article.SentimentPositive, 0.8, nil
}

type countingClusterer struct{ calls atomic.Int32 }

func (c *countingClusterer) Assign(_ context.Context, arts []article.Candidate) []string {
	c.calls.Add(1)
	ids := make([]string, len(arts))
	for i := range ids {
		ids[i] = "cluster_0"
	}
	return ids
}

type fakeIndex struct {
	calls atomic.Int32
	err   error
}

func (f *fakeIndex) Index(context.Context, string, []article.Candidate) error {
	f.calls.Add(1)
	return f.err
}

func newMachine(docs DocumentExtractor) (*Machine, *countingDepts, *countingSentiment, *countingClusterer, *fakeIndex) {
	d, s, c, i := &countingDepts{}, &countingSentiment{}, &countingClusterer{}, &fakeIndex{}
	return &Machine{Extractor: docs, Departments: d, Sentiment: s, Clusterer: c, Index: i}, d, s, c, i
}

func TestMachineHappyPath(t *testing.T) {
	arts := []article.Candidate{cand(t, "One", article.SourceModelText), cand(t, "Two", article.SourceModelVision)}
	m, d, s, c, i := newMachine(fakeDocs{arts: arts})
	var mu sync.Mutex
	var stages []Stage
	m.OnStage = func(_ context.Context, st State) {
		mu.Lock()
		stages = append(stages, st.Stage)
		mu.Unlock()
	}
	st := m.Run(context.Background(), Input{RunID: "run-1", DocumentID: "doc-1", Path: "x.pdf"})
	if st.Stage != StageDone || st.Err != nil {
		t.Fatalf("expected done, got %s %v", st.Stage, st.Err)
	}
	if d.calls.Load() != 2 || s.calls.Load() != 2 || c.calls.Load() != 1 || i.calls.Load() != 1 {
		t.Fatalf("unexpected call counts d=%d s=%d c=%d i=%d", d.calls.Load(), s.calls.Load(), c.calls.Load(), i.calls.Load())
	}
	for _, a := range st.Articles {
		if a.Department != "Energy" || a.SentimentLabel != article.SentimentPositive || a.TopicClusterID != "cluster_0" {
			t.Fatalf("article not enriched: %+v", a)
		}
	}
	want := "[extraction parallel_classification clustering indexing done]"
	if fmt.Sprint(stages) != want {
		t.Fatalf("stages %v, want %s", stages, want)
	}
	if arts[0].Department != "" {
		t.Fatal("input articles were mutated")
	}
}

func TestMachineExtractionFailure(t *testing.T) {
	for name, docs := range map[string]fakeDocs{
		"error": {err: errors.New("cannot open")},
		"panic": {panic: true},
	} {
		m, d, s, c, i := newMachine(docs)
		st := m.Run(context.Background(), Input{RunID: "run", DocumentID: "doc", Path: "x.pdf"})
		if st.Stage != StageFailed {
			t.Fatalf("%s: expected failed, got %s", name, st.Stage)
		}
		var se *StageError
		if !errors.As(st.Err, &se) || se.Stage != StageExtraction {
			t.Fatalf("%s: expected extraction StageError, got %v", name, st.Err)
		}
		if d.calls.Load()+s.calls.Load()+c.calls.Load()+i.calls.Load() != 0 {
			t.Fatalf("%s: later stages must not run", name)
		}
	}
}

func TestMachineIndexingFailureIsNonFatal(t *testing.T) {
	m, _, _, _, i := newMachine(fakeDocs{arts: []article.Candidate{cand(t, "One", article.SourceHeuristic)}})
	i.err = errors.New("redis down")
	st := m.Run(context.Background(), Input{RunID: "run", DocumentID: "doc", Path: "x.pdf"})
	if st.Stage != StageDone || st.Err != nil {
		t.Fatalf("indexing failure should not fail the run: %s %v", st.Stage, st.Err)
	}
	if len(st.Articles) != 1 {
		t.Fatalf("articles lost: %+v", st.Articles)
	}
}

func TestMachineNoArticles(t *testing.T) {
	m, _, _, _, i := newMachine(fakeDocs{})
	st := m.Run(context.Background(), Input{RunID: "run", DocumentID: "doc", Path: "x.pdf"})
	if st.Stage != StageDone || len(st.Articles) != 0 || i.calls.Load() != 0 {
		t.Fatalf("empty document should finish cleanly: %+v", st)
	}
}

func TestNextRoutesErrorsToFailed(t *testing.T) {
	for _, s := range []Stage{StageExtraction, StageClassification, StageClustering, StageIndexing} {
		if got := next(s, State{Err: errors.New("x")}); got != StageFailed {
			t.Fatalf("%s with error -> %s", s, got)
		}
	}
	if next(StageIndexing, State{}) != StageDone {
		t.Fatal("indexing should lead to done")
	}
}

func TestMachineWithKeywordClassifiers(t *testing.T) {
	arts := []article.Candidate{cand(t, "Police crackdown", article.SourceModelText)}
	m := &Machine{
		Extractor:   fakeDocs{arts: arts},
		Departments: classify.KeywordDepartments{},
		Sentiment:   classify.KeywordSentiment{},
		Clusterer:   classify.DefaultClusterer(),
	}
	st := m.Run(context.Background(), Input{RunID: "run", DocumentID: "doc", Path: "x.pdf"})
	if st.Stage != StageDone {
		t.Fatalf("got %s", st.Stage)
	}
	a := st.Articles[0]
	if a.Department != "Home & Law and Order" || a.SentimentLabel != article.SentimentNeutral || !strings.HasPrefix(a.TopicClusterID, "noise_") {
		t.Fatalf("unexpected enrichment: %+v", a)
	}
}

type pageCountDocs struct{ got atomic.Int32 }

func (p *pageCountDocs) ExtractDocument(_ context.Context, _ string, pages int) ([]article.Candidate, error) {
	p.got.Store(int32(pages))
	return nil, nil
}

func TestMachinePassesPageCount(t *testing.T) {
	docs := &pageCountDocs{}
	m, _, _, _, _ := newMachine(docs)
	st := m.Run(context.Background(), Input{RunID: "run", DocumentID: "doc", Path: "x.pdf", Pages: 12})
	if docs.got.Load() != 12 || st.PageCount != 12 {
		t.Fatalf("page count not threaded through: extractor saw %d, state %d", docs.got.Load(), st.PageCount)
	}
}

func TestMachineManyArticlesConcurrently(t *testing.T) {
	const n = 2000
	arts := make([]article.Candidate, n)
	for i := range arts {
		arts[i] = cand(t, fmt.Sprintf("Story %d", i), article.SourceModelText)
	}
	for _, limit := range []int{0, 16} {
		m, d, s, c, _ := newMachine(fakeDocs{arts: arts})
		m.ClassifyLimit = limit
		st := m.Run(context.Background(), Input{RunID: "run", DocumentID: "doc", Path: "x.pdf"})
		if st.Stage != StageDone {
			t.Fatalf("limit %d: got %s %v", limit, st.Stage, st.Err)
		}
		if d.calls.Load() != n || s.calls.Load() != n || c.calls.Load() != 1 {
			t.Fatalf("limit %d: calls d=%d s=%d c=%d", limit, d.calls.Load(), s.calls.Load(), c.calls.Load())
		}
		if len(st.Articles) != n {
			t.Fatalf("limit %d: %d articles, want %d", limit, len(st.Articles), n)
		}
		seen := make(map[string]bool, n)
		missing := 0
		for i, a := range st.Articles {
			if a.ID != arts[i].ID {
				t.Fatalf("limit %d: article %d out of order", limit, i)
			}
			if a.Department != "Energy" || a.SentimentLabel != article.SentimentPositive || a.TopicClusterID == "" {
				missing++
			}
			seen[a.ID] = true
		}
		if missing != 0 || len(seen) != n {
			t.Fatalf("limit %d: missing=%d unique=%d", limit, missing, len(seen))
		}
	}
}
