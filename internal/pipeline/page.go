package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/local/newsdigest/internal/article"
	"github.com/local/newsdigest/internal/extractor"
	"github.com/local/newsdigest/internal/logger"
	"github.com/local/newsdigest/internal/metrics"
)

// TextExtractor produces a page's text layer with provenance.
type TextExtractor interface {
	ExtractPage(ctx context.Context, sess *extractor.Session, pageIndex int) extractor.Result
}

// PageRenderer rasterises a page to JPEG.
type PageRenderer interface {
	RenderPage(ctx context.Context, sess *extractor.Session, pageIndex int) ([]byte, error)
}

// PageProcessor turns one page into article candidates, choosing the digital
// or visual path per page.
type PageProcessor struct {
	Text          TextExtractor
	Selector      extractor.Selector
	Renderer      PageRenderer
	Reconstructor article.Reconstructor
}

// ProcessPage extracts, chooses a strategy and reconstructs articles. A
// failed digital reconstruction is retried once on the visual path. Every
// returned candidate carries pageIndex.
func (p *PageProcessor) ProcessPage(ctx context.Context, sess *extractor.Session, pageIndex int) ([]article.Candidate, error) {
	ctx, l := logger.ForPage(ctx, pageIndex)

	res := p.Text.ExtractPage(ctx, sess, pageIndex)
	strategy := p.Selector.Choose(res)
	metrics.IncStrategy(strategy.String())
	l.Info().
		Str("method", string(res.Method)).
		Str("strategy", strategy.String()).
		Int("attempts", len(res.Attempts)).
		Msg("page strategy selected")

	if strategy == extractor.UseDigital {
		cands, err := p.Reconstructor.FromText(ctx, res.Text)
		if err == nil {
			metrics.IncPage("ok")
			return p.finish(cands, pageIndex), nil
		}
		metrics.IncDigitalFallback()
		l.Warn().Err(err).Msg("digital reconstruction failed, falling back to visual")
	}

	cands, err := p.visual(ctx, sess, pageIndex)
	if err != nil {
		metrics.IncPage("failed")
		return nil, err
	}
	metrics.IncPage("ok")
	return p.finish(cands, pageIndex), nil
}

func (p *PageProcessor) visual(ctx context.Context, sess *extractor.Session, pageIndex int) ([]article.Candidate, error) {
	img, err := p.Renderer.RenderPage(ctx, sess, pageIndex)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", pageIndex+1, err)
	}
	cands, err := p.Reconstructor.FromImage(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("visual reconstruction page %d: %w", pageIndex+1, err)
	}
	return cands, nil
}

func (p *PageProcessor) finish(cands []article.Candidate, pageIndex int) []article.Candidate {
	cands = article.OnPage(cands, pageIndex)
	for _, c := range cands {
		metrics.AddArticles(string(c.Source), 1)
	}
	return cands
}

// DocumentProcessor fans a document's pages out to a PageProcessor.
type DocumentProcessor struct {
	Pages *PageProcessor
	// PageCount reports how many pages the document at path has. It is
	// only consulted when the caller passes no count.
	PageCount func(path string) (int, error)
	// Concurrency bounds pages in flight; 0 means all pages.
	Concurrency int
}

// ExtractDocument returns the articles of every page in page order. A page
// failure drops that page only; failing to open the document is an error.
func (d *DocumentProcessor) ExtractDocument(ctx context.Context, path string, pages int) ([]article.Candidate, error) {
	start := time.Now()
	n := pages
	if n <= 0 && d.PageCount != nil {
		var err error
		if n, err = d.PageCount(path); err != nil {
			return nil, fmt.Errorf("count pages: %w", err)
		}
	}
	if n <= 0 {
		return nil, fmt.Errorf("document %s has no pages", path)
	}

	sess := extractor.NewSession(path, n)
	defer func() {
		if err := sess.Close(); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("closing document session")
		}
	}()

	arts := FanOut(ctx, n, d.Concurrency, func(ctx context.Context, page int) ([]article.Candidate, error) {
		return d.Pages.ProcessPage(ctx, sess, page)
	})
	zerolog.Ctx(ctx).Info().
		Int("pages", n).
		Int("articles", len(arts)).
		Dur("duration", time.Since(start)).
		Msg("document extraction complete")
	return arts, nil
}
