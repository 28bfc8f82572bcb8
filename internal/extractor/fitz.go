package extractor

import (
	"context"
	"fmt"
	"io"

	"github.com/gen2brain/go-fitz"
)

const fitzKey = "fitz"

// FitzDocument returns the session's MuPDF handle, opening it on first use.
// go-fitz serialises calls on a document internally, so the handle is shared
// by concurrent pages.
func FitzDocument(sess *Session) (*fitz.Document, error) {
	r, err := sess.Resource(fitzKey, func(path string) (io.Closer, error) {
		doc, err := fitz.New(path)
		if err != nil {
			return nil, err
		}
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return r.(*fitz.Document), nil
}

// FitzBackend reads the native text layer through MuPDF (go-fitz).
type FitzBackend struct{}

func (FitzBackend) Name() string { return string(MethodFitz) }

func (FitzBackend) Extract(ctx context.Context, sess *Session, pageIndex int) (string, error) {
	if err := sess.CheckPage(pageIndex); err != nil {
		return "", err
	}
	doc, err := FitzDocument(sess)
	if err != nil {
		return "", err
	}
	if pageIndex >= doc.NumPage() {
		return "", fmt.Errorf("page %d out of range (document has %d pages)", pageIndex+1, doc.NumPage())
	}
	text, err := doc.Text(pageIndex)
	if err != nil {
		return "", fmt.Errorf("fitz text page %d: %w", pageIndex+1, err)
	}
	return text, nil
}
