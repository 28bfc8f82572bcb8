package docsource

import (
	"errors"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	fitz "github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"
)

// ErrNotPDF is returned for inputs whose magic bytes are not a PDF.
var ErrNotPDF = errors.New("docsource: not a PDF")

// RequirePDF checks the file's magic bytes, not its name.
func RequirePDF(path string) error {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("failed to detect file type: %w", err)
	}
	if !mtype.Is("application/pdf") {
		return fmt.Errorf("%w: %s is %s", ErrNotPDF, path, mtype.String())
	}
	return nil
}

// PageCount reads the page count with pdfcpu, falling back to MuPDF for
// files pdfcpu cannot parse.
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err == nil && n > 0 {
		return n, nil
	}
	log.Debug().Err(err).Str("file", path).Msg("pdfcpu page count failed, trying mupdf")

	doc, ferr := fitz.New(path)
	if ferr != nil {
		if err == nil {
			err = ferr
		}
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}
