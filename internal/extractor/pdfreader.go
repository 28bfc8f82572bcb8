package extractor

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
)

const layoutKey = "layout"

// layoutDoc wraps a ledongthuc/pdf reader. The reader is not safe for
// concurrent use, so page reads are serialised.
type layoutDoc struct {
	mu sync.Mutex
	f  *os.File
	r  *pdf.Reader
}

func (d *layoutDoc) Close() error { return d.f.Close() }

// LayoutBackend reconstructs page text row by row from glyph positions using
// the pure-Go ledongthuc/pdf reader.
type LayoutBackend struct{}

func (LayoutBackend) Name() string { return string(MethodLayout) }

func (LayoutBackend) Extract(ctx context.Context, sess *Session, pageIndex int) (text string, err error) {
	if err := sess.CheckPage(pageIndex); err != nil {
		return "", err
	}
	res, err := sess.Resource(layoutKey, func(path string) (io.Closer, error) {
		f, r, err := pdf.Open(path)
		if err != nil {
			return nil, err
		}
		return &layoutDoc{f: f, r: r}, nil
	})
	if err != nil {
		return "", err
	}
	doc := res.(*layoutDoc)

	doc.mu.Lock()
	defer doc.mu.Unlock()
	// the reader panics on some malformed content streams
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("layout reader panic on page %d: %v", pageIndex+1, r)
		}
	}()

	if pageIndex >= doc.r.NumPage() {
		return "", fmt.Errorf("page %d out of range (document has %d pages)", pageIndex+1, doc.r.NumPage())
	}
	p := doc.r.Page(pageIndex + 1)
	if p.V.IsNull() {
		return "", ErrNoText
	}
	rows, err := p.GetTextByRow()
	if err != nil {
		return "", fmt.Errorf("layout rows page %d: %w", pageIndex+1, err)
	}

	var b strings.Builder
	for _, row := range rows {
		words := row.Content
		sort.SliceStable(words, func(i, j int) bool { return words[i].X < words[j].X })
		var line strings.Builder
		for _, w := range words {
			line.WriteString(w.S)
		}
		if s := strings.TrimRight(line.String(), " "); s != "" {
			b.WriteString(s)
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}
