// Package statuscheck reports readiness of the services and binaries the
// pipeline depends on.
package statuscheck

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/local/newsdigest/internal/command"
)

// Pinger is anything with a cheap liveness call.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates dependency checks for the /status endpoint.
type Checker struct {
	redis Pinger
	model Pinger
	tools map[string]string
	tiers []string
	// lookPath is swapped in tests.
	lookPath func(string) bool
}

// Options configures the Checker.
type Options struct {
	Redis Pinger
	// Model is nil when no model endpoint is configured.
	Model Pinger
	// Tools maps a display name to the binary it needs, e.g. "ocr": "tesseract".
	Tools map[string]string
	// Tiers are the active extraction tiers in trust order.
	Tiers []string
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis Status            `json:"redis"`
	Model Status            `json:"model"`
	Tools map[string]Status `json:"tools"`
	Tiers []string          `json:"extraction_tiers"`
}

// Healthy reports whether the pipeline can make progress: Redis must be up
// and at least one extraction tier configured.
func (s Summary) Healthy() bool {
	return s.Redis.OK && len(s.Tiers) > 0
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	return &Checker{
		redis:    opts.Redis,
		model:    opts.Model,
		tools:    opts.Tools,
		tiers:    opts.Tiers,
		lookPath: command.Available,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	s := Summary{
		Redis: ping(ctx, c.redis, 2*time.Second, "Connected"),
		Tools: map[string]Status{},
		Tiers: c.tiers,
	}
	if c.model == nil {
		s.Model = Status{OK: false, Message: "Not configured; heuristic reconstruction"}
	} else {
		s.Model = ping(ctx, c.model, 5*time.Second, "Available")
	}
	names := make([]string, 0, len(c.tools))
	for name := range c.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if c.lookPath(c.tools[name]) {
			s.Tools[name] = Status{OK: true, Message: "Available"}
		} else {
			s.Tools[name] = Status{OK: false, Message: "Binary not found"}
		}
	}
	return s
}

func ping(ctx context.Context, p Pinger, timeout time.Duration, okMsg string) Status {
	if p == nil {
		return Status{OK: false, Message: "client unavailable"}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: okMsg}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
