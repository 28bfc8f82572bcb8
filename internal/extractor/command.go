package extractor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/local/newsdigest/internal/command"
)

// CommandBackend shells out to a CLI text extractor for a single page.
type CommandBackend struct {
	name   string
	bin    string
	runner command.Runner
	args   func(path string, page int) []string
}

func (c *CommandBackend) Name() string { return c.name }

func (c *CommandBackend) Extract(ctx context.Context, sess *Session, pageIndex int) (string, error) {
	if err := sess.CheckPage(pageIndex); err != nil {
		return "", err
	}
	out, errb, err := c.runner.Run(ctx, c.bin, c.args(sess.Path, pageIndex+1)...)
	if err != nil {
		return "", fmt.Errorf("%s page %d: %w: %s", c.name, pageIndex+1, err,
			command.Truncate(strings.TrimSpace(string(errb)), 512))
	}
	return string(out), nil
}

// NewPdftotext runs Poppler's pdftotext in layout mode:
// pdftotext -f N -l N -layout -enc UTF-8 <path> -
func NewPdftotext(bin string, r command.Runner) *CommandBackend {
	if bin == "" {
		bin = "pdftotext"
	}
	return &CommandBackend{
		name:   string(MethodPdftotext),
		bin:    bin,
		runner: r,
		args: func(path string, page int) []string {
			n := strconv.Itoa(page)
			return []string{"-f", n, "-l", n, "-layout", "-enc", "UTF-8", path, "-"}
		},
	}
}

// NewMutool runs MuPDF's command-line renderer in text mode:
// mutool draw -q -F txt -o - <path> N
func NewMutool(bin string, r command.Runner) *CommandBackend {
	if bin == "" {
		bin = "mutool"
	}
	return &CommandBackend{
		name:   string(MethodMutool),
		bin:    bin,
		runner: r,
		args: func(path string, page int) []string {
			return []string{"draw", "-q", "-F", "txt", "-o", "-", path, strconv.Itoa(page)}
		},
	}
}
