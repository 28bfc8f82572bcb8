// Package pipeline drives a document from page extraction to indexing.
package pipeline

import (
	"fmt"

	"github.com/local/newsdigest/internal/article"
)

// Stage names a state machine node.
type Stage string

const (
	StageExtraction     Stage = "extraction"
	StageClassification Stage = "parallel_classification"
	StageClustering     Stage = "clustering"
	StageIndexing       Stage = "indexing"
	StageDone           Stage = "done"
	StageFailed         Stage = "failed"
)

// Terminal reports whether no further stage follows s.
func (s Stage) Terminal() bool { return s == StageDone || s == StageFailed }

// State is threaded through the stages. Each stage returns a new value.
type State struct {
	RunID      string              `json:"run_id"`
	DocumentID string              `json:"document_id"`
	SourcePath string              `json:"source_path"`
	PageCount  int                 `json:"page_count"`
	Articles   []article.Candidate `json:"articles"`
	Err        error               `json:"-"`
	Stage      Stage               `json:"stage"`
}

// StageError records which stage failed a run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s failed: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }
