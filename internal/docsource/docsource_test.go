package docsource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParseS3URL(t *testing.T) {
	b, k, err := ParseS3URL("s3://papers/2024/06/eenadu.pdf")
	if err != nil || b != "papers" || k != "2024/06/eenadu.pdf" {
		t.Fatalf("got %q %q %v", b, k, err)
	}
	for _, bad := range []string{"s3://", "s3://bucket", "s3://bucket/", "s3:///key"} {
		if _, _, err := ParseS3URL(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestRequirePDF(t *testing.T) {
	pdf := writeFile(t, "a.pdf", "%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n")
	if err := RequirePDF(pdf); err != nil {
		t.Fatalf("PDF header rejected: %v", err)
	}
	// a .pdf extension is not enough
	txt := writeFile(t, "fake.pdf", "just some text, not a document")
	if err := RequirePDF(txt); !errors.Is(err, ErrNotPDF) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}
}

func TestFetchLocalNotPDF(t *testing.T) {
	p := writeFile(t, "notes.txt", "hello")
	f := NewFetcher(Options{})
	if _, err := f.Fetch(context.Background(), "file://"+p); !errors.Is(err, ErrNotPDF) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}
	if _, err := os.Stat(p); err != nil {
		t.Fatal("local files must not be removed")
	}
}

func TestFetchMissingFile(t *testing.T) {
	f := NewFetcher(Options{})
	if _, err := f.Fetch(context.Background(), filepath.Join(t.TempDir(), "nope.pdf#page=2")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFetchHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()
	f := NewFetcher(Options{HTTPClient: srv.Client()})
	if _, err := f.Fetch(context.Background(), srv.URL+"/paper.pdf"); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestFetchHTTPNotPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>login required</body></html>"))
	}))
	defer srv.Close()
	f := NewFetcher(Options{HTTPClient: srv.Client()})
	if _, err := f.Fetch(context.Background(), srv.URL+"/paper.pdf"); !errors.Is(err, ErrNotPDF) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}
}

func TestDocumentCleanupIdempotent(t *testing.T) {
	p := writeFile(t, "tmp.pdf", "x")
	d := &Document{Path: p, cleanup: removeFunc(p)}
	d.Cleanup()
	d.Cleanup()
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatal("temp file should be removed")
	}
}
