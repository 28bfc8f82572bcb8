package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/local/newsdigest/internal/article"
	"github.com/local/newsdigest/internal/queue"
	"github.com/local/newsdigest/internal/statuscheck"
	"github.com/local/newsdigest/internal/store"
)

type fakeQueue struct {
	jobs      []queue.Job
	cancelled []string
	err       error
}

func (q *fakeQueue) Enqueue(_ context.Context, j queue.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, j)
	return nil
}

func (q *fakeQueue) Cancel(_ context.Context, id string) error {
	q.cancelled = append(q.cancelled, id)
	return nil
}

type memStatus struct {
	mu sync.Mutex
	m  map[string]store.Status
}

func (s *memStatus) Set(_ context.Context, id string, st store.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id] = st
	return nil
}

func (s *memStatus) Get(_ context.Context, id string) (store.Status, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.m[id]
	return st, ok, nil
}

type memResults map[string][]article.Candidate

func (m memResults) LoadRun(_ context.Context, id string) ([]article.Candidate, bool, error) {
	a, ok := m[id]
	return a, ok, nil
}

func newServer(q *fakeQueue, st *memStatus, res memResults) *http.ServeMux {
	mux := http.NewServeMux()
	New(Dependencies{Queue: q, Status: st, Results: res}).RegisterRoutes(mux)
	return mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestProcessEnqueues(t *testing.T) {
	q := &fakeQueue{}
	st := &memStatus{m: map[string]store.Status{}}
	mux := newServer(q, st, memResults{})

	rec := do(mux, http.MethodPost, "/process", `{"file_path":"s3://papers/eenadu.pdf","document_id":"eenadu-1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp processResp
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(q.jobs) != 1 || q.jobs[0].RunID != resp.RunID || q.jobs[0].DocumentID != "eenadu-1" {
		t.Fatalf("unexpected jobs %+v (resp %+v)", q.jobs, resp)
	}
	if s, ok := st.m[resp.RunID]; !ok || s.Status != "queued" {
		t.Fatalf("status not initialised: %+v", s)
	}
}

func TestProcessValidation(t *testing.T) {
	mux := newServer(&fakeQueue{}, &memStatus{m: map[string]store.Status{}}, memResults{})
	if rec := do(mux, http.MethodGet, "/process", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET: %d", rec.Code)
	}
	if rec := do(mux, http.MethodPost, "/process", "{"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: %d", rec.Code)
	}
	if rec := do(mux, http.MethodPost, "/process", `{"document_id":"x"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing ref: %d", rec.Code)
	}
}

func TestProcessQueueDown(t *testing.T) {
	st := &memStatus{m: map[string]store.Status{}}
	mux := newServer(&fakeQueue{err: errors.New("redis down")}, st, memResults{})
	rec := do(mux, http.MethodPost, "/process", `{"file_url":"https://example.com/a.pdf"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	for _, s := range st.m {
		if s.Status != "failed" {
			t.Fatalf("run should be marked failed, got %+v", s)
		}
	}
}

func TestProgress(t *testing.T) {
	st := &memStatus{m: map[string]store.Status{"r1": {Status: "processing", Stage: "clustering", Progress: 75}}}
	mux := newServer(&fakeQueue{}, st, memResults{})

	rec := do(mux, http.MethodGet, "/progress/r1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body map[string]any
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body["stage"] != "clustering" || body["progress"].(float64) != 75 {
		t.Fatalf("unexpected body %v", body)
	}
	if rec := do(mux, http.MethodGet, "/progress/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing run: %d", rec.Code)
	}
}

func TestArticles(t *testing.T) {
	st := &memStatus{m: map[string]store.Status{"pending": {Status: "processing"}}}
	res := memResults{"r1": {{ID: "a1", Headline: "Polavaram works resume", Department: "Irrigation & Water Resources"}}}
	mux := newServer(&fakeQueue{}, st, res)

	rec := do(mux, http.MethodGet, "/runs/r1/articles", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body struct {
		Count    int                 `json:"count"`
		Articles []article.Candidate `json:"articles"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.Count != 1 || body.Articles[0].Department != "Irrigation & Water Resources" {
		t.Fatalf("unexpected body %+v", body)
	}
	if rec := do(mux, http.MethodGet, "/runs/pending/articles", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("pending run: %d", rec.Code)
	}
	if rec := do(mux, http.MethodGet, "/runs/nope/articles", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown run: %d", rec.Code)
	}
	if rec := do(mux, http.MethodGet, "/runs/r1/other", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown sub-resource: %d", rec.Code)
	}
}

func TestCancel(t *testing.T) {
	q := &fakeQueue{}
	st := &memStatus{m: map[string]store.Status{"r1": {Status: "queued"}}}
	mux := newServer(q, st, memResults{})

	rec := do(mux, http.MethodPost, "/cancel", `{"run_id":"r1","reason":"duplicate"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if len(q.cancelled) != 1 || q.cancelled[0] != "r1" {
		t.Fatalf("queue not told: %v", q.cancelled)
	}
	if s := st.m["r1"]; s.Status != "cancelled" || s.Message != "Cancelled: duplicate" || s.End == nil {
		t.Fatalf("status not updated: %+v", s)
	}
	if rec := do(mux, http.MethodPost, "/cancel", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing id: %d", rec.Code)
	}
}

type fixedHealth statuscheck.Summary

func (h fixedHealth) Summary(context.Context) statuscheck.Summary { return statuscheck.Summary(h) }

func TestStatusEndpoint(t *testing.T) {
	mux := http.NewServeMux()
	deps := Dependencies{Queue: &fakeQueue{}, Status: &memStatus{m: map[string]store.Status{}}, Results: memResults{},
		Health: fixedHealth{Redis: statuscheck.Status{OK: false, Message: "down"}, Tiers: []string{"fitz"}}}
	New(deps).RegisterRoutes(mux)
	if rec := do(mux, http.MethodGet, "/status", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("redis down should be 503, got %d", rec.Code)
	}

	mux = http.NewServeMux()
	deps.Health = fixedHealth{Redis: statuscheck.Status{OK: true}, Tiers: []string{"fitz"}}
	New(deps).RegisterRoutes(mux)
	if rec := do(mux, http.MethodGet, "/status", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthy should be 200, got %d", rec.Code)
	}
}

type memIndex struct {
	arts     map[string]article.Candidate
	depts    map[string][]string
	clusters map[string][]string // run_id/cluster
}

func (m memIndex) Article(_ context.Context, id string) (article.Candidate, bool, error) {
	a, ok := m.arts[id]
	return a, ok, nil
}

func (m memIndex) ByDepartment(_ context.Context, dept string) ([]string, error) {
	return m.depts[dept], nil
}

func (m memIndex) ByCluster(_ context.Context, runID, cluster string) ([]string, error) {
	return m.clusters[runID+"/"+cluster], nil
}

func TestIndexLookups(t *testing.T) {
	idx := memIndex{
		arts: map[string]article.Candidate{
			"a1": {ID: "a1", Headline: "Canal works", Department: "Irrigation & Water Resources", TopicClusterID: "cluster_0"},
			"a2": {ID: "a2", Headline: "Reservoir levels", Department: "Irrigation & Water Resources", TopicClusterID: "cluster_0"},
		},
		depts:    map[string][]string{"Irrigation & Water Resources": {"a2", "a1", "expired"}},
		clusters: map[string][]string{"r1/cluster_0": {"a1", "a2"}},
	}
	mux := http.NewServeMux()
	New(Dependencies{Queue: &fakeQueue{}, Status: &memStatus{m: map[string]store.Status{}}, Results: memResults{}, Index: idx}).RegisterRoutes(mux)

	var resp struct {
		Count    int                 `json:"count"`
		Articles []article.Candidate `json:"articles"`
	}
	rec := do(mux, http.MethodGet, "/departments/Irrigation%20%26%20Water%20Resources/articles", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("department: %d %s", rec.Code, rec.Body.String())
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 || resp.Articles[0].ID != "a1" || resp.Articles[1].ID != "a2" {
		t.Fatalf("unexpected department response %+v", resp)
	}

	rec = do(mux, http.MethodGet, "/runs/r1/clusters/cluster_0", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cluster: %d %s", rec.Code, rec.Body.String())
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 {
		t.Fatalf("unexpected cluster response %+v", resp)
	}

	if rec := do(mux, http.MethodGet, "/runs/r2/clusters/cluster_0", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"count":0`) {
		t.Fatalf("empty cluster: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(mux, http.MethodGet, "/departments/Energy", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing suffix: %d", rec.Code)
	}
	if rec := do(mux, http.MethodPost, "/departments/Energy/articles", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST: %d", rec.Code)
	}
}

func TestIndexRoutesNeedIndex(t *testing.T) {
	mux := newServer(&fakeQueue{}, &memStatus{m: map[string]store.Status{}}, memResults{})
	if rec := do(mux, http.MethodGet, "/departments/Energy/articles", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("department without index: %d", rec.Code)
	}
	if rec := do(mux, http.MethodGet, "/runs/r1/clusters/cluster_0", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("cluster without index: %d", rec.Code)
	}
}
