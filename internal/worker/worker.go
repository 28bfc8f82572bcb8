// Package worker consumes document jobs from the queue and runs them through
// the pipeline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/newsdigest/internal/article"
	"github.com/local/newsdigest/internal/docsource"
	"github.com/local/newsdigest/internal/logger"
	"github.com/local/newsdigest/internal/metrics"
	"github.com/local/newsdigest/internal/pipeline"
	"github.com/local/newsdigest/internal/queue"
	"github.com/local/newsdigest/internal/store"
)

// Queue is the subset of the job queue the worker needs.
type Queue interface {
	Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, queue.Job, []byte, error)
	Ack(ctx context.Context, msgID string) error
	AddDLQ(ctx context.Context, payload []byte, reason string) error
	IsCancelled(ctx context.Context, runID string) (bool, error)
	IsIdemDone(ctx context.Context, key string) (bool, error)
	MarkIdemDone(ctx context.Context, key string, ttl time.Duration) error
	Depths(ctx context.Context) (stream, dlq int64, err error)
}

// Fetcher resolves a job's file reference to a local PDF.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (*docsource.Document, error)
}

// StatusStore records run progress.
type StatusStore interface {
	Set(ctx context.Context, runID string, st store.Status) error
}

// ResultStore persists a finished run's articles.
type ResultStore interface {
	SaveRun(ctx context.Context, runID string, arts []article.Candidate) error
}

// Config controls the worker loops.
type Config struct {
	Concurrency    int
	ConsumerPrefix string
	PollTimeout    time.Duration
	IdemTTL        time.Duration
}

// Worker runs Concurrency loops until Stop.
type Worker struct {
	cfg     Config
	q       Queue
	fetch   Fetcher
	machine *pipeline.Machine
	status  StatusStore
	results ResultStore

	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds a worker. A nil results store skips persistence.
func New(cfg Config, q Queue, fetch Fetcher, machine *pipeline.Machine, status StatusStore, results ResultStore) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 2 * time.Second
	}
	if cfg.IdemTTL <= 0 {
		cfg.IdemTTL = 7 * 24 * time.Hour
	}
	if cfg.ConsumerPrefix == "" {
		cfg.ConsumerPrefix = "worker"
	}
	return &Worker{cfg: cfg, q: q, fetch: fetch, machine: machine, status: status, results: results, stop: make(chan struct{})}
}

// Start launches the worker loops and the queue depth monitor.
func (w *Worker) Start() {
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(i)
	}
	w.wg.Add(1)
	go w.monitor()
}

// Stop signals the loops and waits for in-flight jobs or ctx expiry.
func (w *Worker) Stop(ctx context.Context) error {
	close(w.stop)
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) stopped() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

func (w *Worker) loop(id int) {
	defer w.wg.Done()
	consumer := fmt.Sprintf("%s-%d", w.cfg.ConsumerPrefix, id)
	log.Info().Int("worker", id).Str("consumer", consumer).Msg("worker started")
	for !w.stopped() {
		msgID, job, raw, err := w.q.Dequeue(context.Background(), consumer, w.cfg.PollTimeout)
		if msgID == "" {
			if err != nil {
				log.Error().Err(err).Msg("queue dequeue error")
				time.Sleep(500 * time.Millisecond)
			}
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("msg_id", msgID).Msg("undecodable job, moving to dlq")
			_ = w.q.AddDLQ(context.Background(), raw, err.Error())
			_ = w.q.Ack(context.Background(), msgID)
			continue
		}
		if err := w.Process(context.Background(), job); err != nil {
			_ = w.q.AddDLQ(context.Background(), raw, err.Error())
		}
		if err := w.q.Ack(context.Background(), msgID); err != nil {
			log.Warn().Err(err).Str("msg_id", msgID).Msg("ack failed")
		}
	}
	log.Info().Int("worker", id).Msg("worker stopped")
}

var stageProgress = map[pipeline.Stage]int{
	pipeline.StageExtraction:     10,
	pipeline.StageClassification: 60,
	pipeline.StageClustering:     75,
	pipeline.StageIndexing:       90,
	pipeline.StageDone:           100,
	pipeline.StageFailed:         100,
}

// Process runs one job end to end. The returned error means the job should
// be dead-lettered; skipped jobs return nil.
func (w *Worker) Process(ctx context.Context, job queue.Job) error {
	ctx, l := logger.ForRun(ctx, job.RunID, job.DocumentID)
	start := time.Now()

	if w.isCancelled(ctx, job.RunID) {
		l.Warn().Msg("run cancelled before processing; skipping")
		w.setStatus(ctx, job.RunID, store.Status{Status: "cancelled", Progress: 100, Message: "Cancelled", Start: &start})
		return nil
	}
	if done, _ := w.q.IsIdemDone(ctx, job.IdempotencyKey); done {
		l.Info().Str("idempotency_key", job.IdempotencyKey).Msg("document already digested; skipping")
		return nil
	}

	w.setStatus(ctx, job.RunID, store.Status{Status: "processing", Progress: 5, Message: "Fetching document", Start: &start,
		Metadata: map[string]interface{}{"file_path": job.FilePath, "document_id": job.DocumentID}})

	doc, err := w.fetch.Fetch(ctx, job.FilePath)
	if err != nil {
		w.fail(ctx, job, start, fmt.Errorf("fetch document: %w", err))
		return err
	}
	defer doc.Cleanup()

	// POST /cancel can land mid-run; each stage boundary re-checks it and
	// stops in-flight work through runCtx.
	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	var cancelled atomic.Bool
	m := w.machine.WithObserver(func(_ context.Context, st pipeline.State) {
		if st.Stage.Terminal() {
			return
		}
		if w.isCancelled(ctx, job.RunID) {
			cancelled.Store(true)
			stopRun()
			return
		}
		w.setStatus(ctx, job.RunID, store.Status{
			Status:   "processing",
			Stage:    string(st.Stage),
			Progress: stageProgress[st.Stage],
			Message:  fmt.Sprintf("Running %s", st.Stage),
			Start:    &start,
			Metadata: map[string]interface{}{"page_count": doc.Pages, "articles": len(st.Articles)},
		})
	})
	st := m.Run(runCtx, pipeline.Input{RunID: job.RunID, DocumentID: job.DocumentID, Path: doc.Path, Pages: doc.Pages})
	if cancelled.Load() || w.isCancelled(ctx, job.RunID) {
		l.Warn().Str("stage", string(st.Stage)).Msg("run cancelled during processing; discarding results")
		end := time.Now()
		w.setStatus(ctx, job.RunID, store.Status{Status: "cancelled", Stage: string(st.Stage), Progress: 100, Message: "Cancelled", Start: &start, End: &end})
		return nil
	}
	if st.Stage == pipeline.StageFailed {
		w.fail(ctx, job, start, st.Err)
		return st.Err
	}

	if w.results != nil {
		if err := w.results.SaveRun(ctx, job.RunID, st.Articles); err != nil {
			w.fail(ctx, job, start, fmt.Errorf("save results: %w", err))
			return err
		}
	}
	_ = w.q.MarkIdemDone(ctx, job.IdempotencyKey, w.cfg.IdemTTL)

	end := time.Now()
	w.setStatus(ctx, job.RunID, store.Status{
		Status:   "done",
		Stage:    string(pipeline.StageDone),
		Progress: 100,
		Message:  fmt.Sprintf("Extracted %d articles", len(st.Articles)),
		Start:    &start,
		End:      &end,
		Metadata: map[string]interface{}{"page_count": doc.Pages, "articles": len(st.Articles)},
	})
	l.Info().Int("articles", len(st.Articles)).Dur("duration", end.Sub(start)).Msg("run complete")
	return nil
}

func (w *Worker) fail(ctx context.Context, job queue.Job, start time.Time, err error) {
	if err == nil {
		err = errors.New("unknown failure")
	}
	end := time.Now()
	stage := ""
	var se *pipeline.StageError
	if errors.As(err, &se) {
		stage = string(se.Stage)
	}
	w.setStatus(ctx, job.RunID, store.Status{
		Status: "failed", Stage: stage, Progress: 100, Message: err.Error(), Start: &start, End: &end,
	})
	log.Ctx(ctx).Error().Err(err).Msg("run failed")
}

func (w *Worker) isCancelled(ctx context.Context, runID string) bool {
	cancelled, err := w.q.IsCancelled(ctx, runID)
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Msg("cancel check failed")
	}
	return cancelled
}

func (w *Worker) setStatus(ctx context.Context, runID string, st store.Status) {
	if w.status == nil {
		return
	}
	if err := w.status.Set(ctx, runID, st); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("status update failed")
	}
}

func (w *Worker) monitor() {
	defer w.wg.Done()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			stream, dlq, err := w.q.Depths(ctx)
			cancel()
			if err != nil {
				log.Debug().Err(err).Msg("queue depth check failed")
				continue
			}
			metrics.SetQueueDepth("stream", stream)
			metrics.SetQueueDepth("dlq", dlq)
		}
	}
}
