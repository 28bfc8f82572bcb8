package statuscheck

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestSummary(t *testing.T) {
	c := New(Options{
		Redis: pingFunc(func(context.Context) error { return nil }),
		Model: pingFunc(func(context.Context) error { return errors.New("401 unauthorized") }),
		Tools: map[string]string{"ocr": "tesseract", "pdftotext": "pdftotext"},
		Tiers: []string{"fitz", "layout"},
	})
	c.lookPath = func(bin string) bool { return bin == "pdftotext" }

	s := c.Summary(context.Background())
	if !s.Redis.OK || s.Model.OK || s.Model.Message != "401 unauthorized" {
		t.Fatalf("unexpected service status: %+v", s)
	}
	if !s.Tools["pdftotext"].OK || s.Tools["ocr"].OK {
		t.Fatalf("unexpected tools: %+v", s.Tools)
	}
	if !s.Healthy() {
		t.Fatal("redis up with tiers configured should be healthy")
	}
}

func TestSummaryWithoutModel(t *testing.T) {
	c := New(Options{Redis: pingFunc(func(context.Context) error { return errors.New("connection refused") })})
	s := c.Summary(context.Background())
	if s.Redis.OK || s.Healthy() {
		t.Fatalf("redis down must be unhealthy: %+v", s)
	}
	if s.Model.OK || !strings.Contains(s.Model.Message, "heuristic") {
		t.Fatalf("unexpected model status: %+v", s.Model)
	}
}

func TestTrimError(t *testing.T) {
	if got := trimError(context.DeadlineExceeded); got != "timeout" {
		t.Fatalf("got %q", got)
	}
	if got := trimError(errors.New(strings.Repeat("x", 300))); len(got) != 120 {
		t.Fatalf("expected 120 chars, got %d", len(got))
	}
}
