// Package ocr wraps the tesseract CLI and turns its TSV output into
// positioned text blocks.
package ocr

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/local/newsdigest/internal/article"
	"github.com/local/newsdigest/internal/command"
)

// Tesseract recognises page images with the tesseract binary.
type Tesseract struct {
	Bin         string
	Lang        string
	TessdataDir string
	runner      command.Runner
}

// New returns a Tesseract recognizer. bin defaults to "tesseract" and lang to
// "eng".
func New(bin, lang, tessdataDir string, r command.Runner) *Tesseract {
	if bin == "" {
		bin = "tesseract"
	}
	if lang == "" {
		lang = "eng"
	}
	if r == nil {
		r = command.Exec{}
	}
	return &Tesseract{Bin: bin, Lang: lang, TessdataDir: tessdataDir, runner: r}
}

// Recognize runs tesseract in TSV mode over a JPEG and returns one block per
// recognised line.
func (t *Tesseract) Recognize(ctx context.Context, image []byte) ([]article.TextBlock, error) {
	f, err := os.CreateTemp("", "newsdigest-ocr-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("create temp image: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(image); err != nil {
		f.Close()
		return nil, fmt.Errorf("write temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close temp image: %w", err)
	}

	// tesseract <file> stdout -l <lang> [--tessdata-dir d] tsv
	args := []string{f.Name(), "stdout", "-l", t.Lang}
	if t.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.TessdataDir)
	}
	args = append(args, "tsv")

	out, errb, err := t.runner.Run(ctx, t.Bin, args...)
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w: %s", err, command.Truncate(strings.TrimSpace(string(errb)), 512))
	}
	return ParseTSV(string(out)), nil
}

type lineKey struct{ page, block, par, line int }

type lineAcc struct {
	words          []string
	confSum        float64
	x0, y0, x1, y1 float64
}

// ParseTSV groups word rows (level 5) with positive confidence into lines.
// Columns: level page_num block_num par_num line_num word_num left top width
// height conf text.
func ParseTSV(tsv string) []article.TextBlock {
	var order []lineKey
	lines := make(map[lineKey]*lineAcc)

	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || strings.TrimSpace(ln) == "" {
			continue
		}
		cols := strings.Split(strings.TrimRight(ln, "\r"), "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		text := strings.TrimSpace(cols[11])
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf <= 0 || text == "" {
			continue
		}
		n := make([]int, 10)
		ok := true
		for j := 0; j < 10; j++ {
			if n[j], err = strconv.Atoi(cols[j]); err != nil {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		key := lineKey{page: n[1], block: n[2], par: n[3], line: n[4]}
		left, top := float64(n[6]), float64(n[7])
		right, bottom := left+float64(n[8]), top+float64(n[9])

		acc, seen := lines[key]
		if !seen {
			acc = &lineAcc{x0: left, y0: top, x1: right, y1: bottom}
			lines[key] = acc
			order = append(order, key)
		}
		acc.words = append(acc.words, text)
		acc.confSum += conf
		acc.x0, acc.y0 = math.Min(acc.x0, left), math.Min(acc.y0, top)
		acc.x1, acc.y1 = math.Max(acc.x1, right), math.Max(acc.y1, bottom)
	}

	blocks := make([]article.TextBlock, 0, len(order))
	for _, k := range order {
		acc := lines[k]
		blocks = append(blocks, article.TextBlock{
			Text:       strings.Join(acc.words, " "),
			Confidence: acc.confSum / float64(len(acc.words)) / 100.0,
			Box:        article.BoundingBox{X: acc.x0, Y: acc.y0, Width: acc.x1 - acc.x0, Height: acc.y1 - acc.y0},
		})
	}
	return blocks
}
