// Package media turns photo sources into framed thumbnails.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
)

// FrameOptions describe the polaroid frame around a thumbnail.
type FrameOptions struct {
	InnerPadding  int
	BottomPadding int
	Quality       int // JPEG quality of the data URL
}

// DefaultFrameOptions matches the default thumbnail configuration.
func DefaultFrameOptions() FrameOptions {
	return FrameOptions{InnerPadding: 8, BottomPadding: 31, Quality: 90}
}

// Thumbnail is a framed, square-cropped photo.
type Thumbnail struct {
	Source  string
	Image   image.Image
	DataURL string
}

// Width returns the framed width in pixels.
func (t *Thumbnail) Width() int { return t.Image.Bounds().Dx() }

// Height returns the framed height in pixels.
func (t *Thumbnail) Height() int { return t.Image.Bounds().Dy() }

// Assembler loads photos and frames them.
type Assembler struct {
	loader Loader
	opts   FrameOptions
}

// NewAssembler creates an Assembler.
func NewAssembler(l Loader, opts FrameOptions) *Assembler {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 90
	}
	return &Assembler{loader: l, opts: opts}
}

// Frame loads source and returns its polaroid thumbnail with a square
// photo of size x size pixels. Load failures are *ImageLoadError.
func (a *Assembler) Frame(ctx context.Context, source string, size int) (*Thumbnail, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid thumbnail size %d", size)
	}
	img, err := a.loader.Load(ctx, source)
	if err != nil {
		return nil, err
	}

	framed := Polaroid(CropSquare(img, size), a.opts)
	dataURL, err := EncodeDataURL(framed, a.opts.Quality)
	if err != nil {
		return nil, &ImageLoadError{Source: source, Err: err}
	}
	return &Thumbnail{Source: source, Image: framed, DataURL: dataURL}, nil
}

// FrameAll frames sources in order, skipping (and logging) the ones that
// fail. Cancellation stops early and returns what was framed so far.
func (a *Assembler) FrameAll(ctx context.Context, sources []string, size int) []*Thumbnail {
	out := make([]*Thumbnail, 0, len(sources))
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		th, err := a.Frame(ctx, src, size)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Warn("Media: skipping photo", "error", err)
			continue
		}
		out = append(out, th)
	}
	return out
}

// CropSquare scales img so its shorter side equals size and crops the
// center to size x size.
func CropSquare(img image.Image, size int) *image.RGBA {
	b := img.Bounds()
	side := min(b.Dx(), b.Dy())
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	src := image.Rect(x0, y0, x0+side, y0+side)

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst
}

// Polaroid draws square onto a white frame: InnerPadding on the top and
// sides, BottomPadding below.
func Polaroid(square image.Image, opts FrameOptions) *image.RGBA {
	size := square.Bounds().Dx()
	w := size + 2*opts.InnerPadding
	h := size + opts.InnerPadding + opts.BottomPadding

	dc := gg.NewContext(w, h)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.DrawImage(square, opts.InnerPadding, opts.InnerPadding)

	// Hairline edge so the frame reads on light tiles
	dc.SetRGBA(0, 0, 0, 0.18)
	dc.SetLineWidth(1)
	dc.DrawRectangle(0.5, 0.5, float64(w)-1, float64(h)-1)
	dc.Stroke()

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), dc.Image(), image.Point{}, draw.Src)
	return out
}

// EncodeDataURL encodes img as a JPEG data URL.
func EncodeDataURL(img image.Image, quality int) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
