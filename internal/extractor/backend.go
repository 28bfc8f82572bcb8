// Package extractor pulls the embedded text layer out of PDF pages through an
// ordered chain of backends, escalating while the output looks corrupt.
package extractor

import (
	"context"
	"errors"
)

// Method identifies which backend produced accepted text.
type Method string

const (
	MethodFitz         Method = "fitz"
	MethodLayout       Method = "layout"
	MethodPdftotext    Method = "pdftotext"
	MethodMutool       Method = "mutool"
	MethodVisionNeeded Method = "vision_needed"
)

// ErrNoText is returned by backends that ran but found no text on the page.
var ErrNoText = errors.New("extractor: no text on page")

// Backend extracts the raw text of one page. pageIndex is 0-based.
type Backend interface {
	Name() string
	Extract(ctx context.Context, sess *Session, pageIndex int) (string, error)
}

// Attempt is the diagnostic record of one scored backend try.
type Attempt struct {
	Backend       string  `json:"backend"`
	Ratio         float64 `json:"ratio"`
	Irrecoverable int     `json:"irrecoverable"`
	Chars         int     `json:"chars"`
}
