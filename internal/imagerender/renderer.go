package imagerender

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"github.com/local/newsdigest/internal/extractor"
)

// ColorMode selects RGB or grayscale page images (RENDER_COLOR).
type ColorMode string

const (
	ColorRGB  ColorMode = "rgb"
	ColorGray ColorMode = "gray"
)

// ParseColorMode maps a config value to a ColorMode; anything other than
// "gray" or "grey" is RGB.
func ParseColorMode(s string) ColorMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gray", "grey":
		return ColorGray
	}
	return ColorRGB
}

// Renderer rasterises PDF pages for the visual extraction path.
type Renderer struct {
	DPI          float64
	MaxDimension int
	Quality      int
	Color        ColorMode
}

// New returns a renderer with the given settings; zero values fall back to
// 150 DPI, 2000 px and quality 85.
func New(dpi float64, maxDimension, quality int) *Renderer {
	if dpi <= 0 {
		dpi = 150
	}
	if maxDimension <= 0 {
		maxDimension = 2000
	}
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &Renderer{DPI: dpi, MaxDimension: maxDimension, Quality: quality, Color: ColorRGB}
}

// RenderPage renders a 0-based page of the session's document as JPEG,
// scaled so the longer side is at most MaxDimension.
func (r *Renderer) RenderPage(ctx context.Context, sess *extractor.Session, pageIndex int) ([]byte, error) {
	if err := sess.CheckPage(pageIndex); err != nil {
		return nil, err
	}
	doc, err := extractor.FitzDocument(sess)
	if err != nil {
		return nil, err
	}
	return r.render(ctx, doc, pageIndex)
}

func (r *Renderer) render(ctx context.Context, doc *fitz.Document, pageIndex int) ([]byte, error) {
	img, err := doc.ImageDPI(pageIndex, r.DPI)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", pageIndex+1, err)
	}

	src := image.Image(img)
	w, h := FitDimensions(img.Bounds().Dx(), img.Bounds().Dy(), r.MaxDimension)
	if w != img.Bounds().Dx() || h != img.Bounds().Dy() {
		src = Scale(img, w, h, r.Color)
	} else if r.Color == ColorGray {
		src = toGray(img)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: r.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	zerolog.Ctx(ctx).Debug().
		Int("page", pageIndex+1).
		Int("width", w).
		Int("height", h).
		Str("color", string(r.Color)).
		Int("jpeg_size", buf.Len()).
		Msg("rendered page")

	return buf.Bytes(), nil
}

// FitDimensions scales (w, h) down proportionally so neither side exceeds
// max. Images already within bounds are returned unchanged.
func FitDimensions(w, h, max int) (int, int) {
	if max <= 0 || (w <= max && h <= max) {
		return w, h
	}
	longer := w
	if h > longer {
		longer = h
	}
	scale := float64(max) / float64(longer)
	nw, nh := int(float64(w)*scale), int(float64(h)*scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

// Scale resamples src to w×h with Catmull-Rom.
func Scale(src image.Image, w, h int, mode ColorMode) image.Image {
	rect := image.Rect(0, 0, w, h)
	var dst draw.Image
	if mode == ColorGray {
		dst = image.NewGray(rect)
	} else {
		dst = image.NewRGBA(rect)
	}
	draw.CatmullRom.Scale(dst, rect, src, src.Bounds(), draw.Src, nil)
	return dst
}

func toGray(img image.Image) *image.Gray {
	g := image.NewGray(img.Bounds())
	draw.Draw(g, g.Bounds(), img, img.Bounds().Min, draw.Src)
	return g
}

// EncodeToBase64 converts binary data to base64 string
func EncodeToBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DataURL wraps JPEG bytes as a data URL for vision model requests.
func DataURL(jpegBytes []byte) string {
	return "data:image/jpeg;base64," + EncodeToBase64(jpegBytes)
}
