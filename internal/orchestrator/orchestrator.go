// Package orchestrator exposes the HTTP surface for submitting documents and
// following runs.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/newsdigest/internal/article"
	"github.com/local/newsdigest/internal/queue"
	"github.com/local/newsdigest/internal/statuscheck"
	"github.com/local/newsdigest/internal/store"
)

type Queue interface {
	Enqueue(ctx context.Context, job queue.Job) error
	Cancel(ctx context.Context, runID string) error
}

type StatusStore interface {
	Set(ctx context.Context, runID string, st store.Status) error
	Get(ctx context.Context, runID string) (store.Status, bool, error)
}

type ResultStore interface {
	LoadRun(ctx context.Context, runID string) ([]article.Candidate, bool, error)
}

// ArticleIndex looks up indexed articles by department and topic cluster.
type ArticleIndex interface {
	Article(ctx context.Context, id string) (article.Candidate, bool, error)
	ByDepartment(ctx context.Context, dept string) ([]string, error)
	ByCluster(ctx context.Context, runID, cluster string) ([]string, error)
}

// HealthChecker reports dependency readiness.
type HealthChecker interface {
	Summary(ctx context.Context) statuscheck.Summary
}

type Dependencies struct {
	Queue   Queue
	Status  StatusStore
	Results ResultStore
	Index   ArticleIndex  // optional
	Health  HealthChecker // optional
}

type Orchestrator struct {
	deps Dependencies
}

func New(deps Dependencies) *Orchestrator {
	return &Orchestrator{deps: deps}
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/process", o.handleProcess)
	mux.HandleFunc("/progress/", o.handleProgress)
	mux.HandleFunc("/runs/", o.handleRun)
	mux.HandleFunc("/cancel", o.handleCancel)
	if o.deps.Index != nil {
		mux.HandleFunc("/departments/", o.handleDepartment)
	}
	if o.deps.Health != nil {
		mux.HandleFunc("/status", o.handleStatus)
	}
}

func (o *Orchestrator) handleStatus(w http.ResponseWriter, r *http.Request) {
	s := o.deps.Health.Summary(r.Context())
	code := http.StatusOK
	if !s.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, s)
}

type processReq struct {
	FilePath       string `json:"file_path"`
	FileURL        string `json:"file_url"`
	DocumentID     string `json:"document_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

type processResp struct {
	Status  string `json:"status"`
	RunID   string `json:"run_id"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (o *Orchestrator) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var req processReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	ref := strings.TrimSpace(req.FilePath)
	if ref == "" {
		ref = strings.TrimSpace(req.FileURL)
	}
	if ref == "" {
		http.Error(w, "missing file_path or file_url", http.StatusBadRequest)
		return
	}

	runID := uuid.NewString()
	docID := req.DocumentID
	if docID == "" {
		docID = runID
	}
	start := time.Now()
	_ = o.deps.Status.Set(r.Context(), runID, store.Status{Status: "queued", Progress: 0, Message: "queued", Start: &start,
		Metadata: map[string]any{"file_path": ref, "document_id": docID}})

	job := queue.Job{RunID: runID, DocumentID: docID, FilePath: ref, IdempotencyKey: req.IdempotencyKey, EnqueuedAt: start}
	if err := o.deps.Queue.Enqueue(r.Context(), job); err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("enqueue failed")
		end := time.Now()
		_ = o.deps.Status.Set(r.Context(), runID, store.Status{Status: "failed", Progress: 100, Message: "queue unavailable", Start: &start, End: &end})
		http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
		return
	}
	log.Info().Str("run_id", runID).Str("document_id", docID).Str("file", ref).Msg("run queued")
	writeJSON(w, http.StatusCreated, processResp{Status: "ok", RunID: runID, Message: "Document queued for digestion"})
}

func (o *Orchestrator) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/progress/")
	if id == "" {
		http.Error(w, "missing run id", http.StatusBadRequest)
		return
	}
	st, ok, err := o.deps.Status.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    st.Status == "done",
		"run_id":     id,
		"status":     st.Status,
		"stage":      st.Stage,
		"progress":   st.Progress,
		"message":    st.Message,
		"start_time": st.Start,
		"end_time":   st.End,
		"metadata":   st.Metadata,
	})
}

// handleRun serves GET /runs/{run_id}/articles and
// GET /runs/{run_id}/clusters/{cluster}.
func (o *Orchestrator) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, rest, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/runs/"), "/")
	switch {
	case id == "":
		http.NotFound(w, r)
	case rest == "articles":
		o.handleArticles(w, r, id)
	case strings.HasPrefix(rest, "clusters/") && o.deps.Index != nil:
		cluster := strings.TrimPrefix(rest, "clusters/")
		if cluster == "" || strings.Contains(cluster, "/") {
			http.NotFound(w, r)
			return
		}
		ids, err := o.deps.Index.ByCluster(r.Context(), id, cluster)
		if err != nil {
			log.Error().Err(err).Str("run_id", id).Str("cluster", cluster).Msg("cluster lookup failed")
			http.Error(w, "error", http.StatusInternalServerError)
			return
		}
		o.writeArticles(w, r, map[string]any{"run_id": id, "cluster": cluster}, ids)
	default:
		http.NotFound(w, r)
	}
}

// handleDepartment serves GET /departments/{department}/articles across runs.
func (o *Orchestrator) handleDepartment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	dept, ok := strings.CutSuffix(strings.TrimPrefix(r.URL.Path, "/departments/"), "/articles")
	if !ok || dept == "" || strings.Contains(dept, "/") {
		http.NotFound(w, r)
		return
	}
	ids, err := o.deps.Index.ByDepartment(r.Context(), dept)
	if err != nil {
		log.Error().Err(err).Str("department", dept).Msg("department lookup failed")
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	o.writeArticles(w, r, map[string]any{"department": dept}, ids)
}

// writeArticles loads ids from the index and writes them under "articles"
// next to the given fields. Ids whose article has expired are skipped.
func (o *Orchestrator) writeArticles(w http.ResponseWriter, r *http.Request, fields map[string]any, ids []string) {
	sort.Strings(ids)
	arts := make([]article.Candidate, 0, len(ids))
	for _, id := range ids {
		a, ok, err := o.deps.Index.Article(r.Context(), id)
		if err != nil {
			http.Error(w, "error", http.StatusInternalServerError)
			return
		}
		if ok {
			arts = append(arts, a)
		}
	}
	fields["count"] = len(arts)
	fields["articles"] = arts
	writeJSON(w, http.StatusOK, fields)
}

func (o *Orchestrator) handleArticles(w http.ResponseWriter, r *http.Request, id string) {
	arts, ok, err := o.deps.Results.LoadRun(r.Context(), id)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if !ok {
		if st, found, _ := o.deps.Status.Get(r.Context(), id); found && st.Status != "done" {
			http.Error(w, "not ready", http.StatusAccepted)
			return
		}
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if arts == nil {
		arts = []article.Candidate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": id, "count": len(arts), "articles": arts})
}

type cancelReq struct {
	RunID  string `json:"run_id"`
	Reason string `json:"reason,omitempty"`
}

func (o *Orchestrator) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req cancelReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.RunID == "" {
		http.Error(w, "missing run_id", http.StatusBadRequest)
		return
	}
	if err := o.deps.Queue.Cancel(r.Context(), req.RunID); err != nil {
		http.Error(w, "cancel failed", http.StatusInternalServerError)
		return
	}
	st, _, _ := o.deps.Status.Get(r.Context(), req.RunID)
	st.Status = "cancelled"
	st.Message = "Cancelled"
	if req.Reason != "" {
		st.Message = fmt.Sprintf("Cancelled: %s", req.Reason)
	}
	now := time.Now()
	st.End = &now
	_ = o.deps.Status.Set(r.Context(), req.RunID, st)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "run_id": req.RunID, "status": "cancelled"})
}
