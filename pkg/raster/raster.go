// Package raster draws mapview snapshots into images: tiles, the route
// line, markers, photos and labels.
package raster

import (
	"context"
	"errors"
	"image"
	"image/color"
	"log/slog"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"tripreel/pkg/geo"
	"tripreel/pkg/mapview"
	"tripreel/pkg/tiles"
)

// TileProvider serves decoded tiles of its active style.
type TileProvider interface {
	Tile(ctx context.Context, t tiles.Tile) (image.Image, error)
	Style() tiles.Style
	SetStyle(st tiles.Style)
}

// Options control what is drawn.
type Options struct {
	PathColor   string
	PathWidth   float64
	Labels      bool
	Attribution bool
	LabelSize   float64
}

// DefaultOptions returns the standard look.
func DefaultOptions() Options {
	return Options{PathColor: "#E4572E", PathWidth: 4, Labels: true, Attribution: true, LabelSize: 14}
}

// Rasterizer renders snapshots. It is not safe for concurrent use.
type Rasterizer struct {
	tiles TileProvider
	opts  Options

	label font.Face
	small font.Face
}

// New creates a rasterizer. tp may be nil, in which case only the style
// background colour is drawn under the overlays.
func New(tp TileProvider, opts Options) *Rasterizer {
	if opts.PathWidth <= 0 {
		opts.PathWidth = 4
	}
	if opts.LabelSize <= 0 {
		opts.LabelSize = 14
	}
	if opts.PathColor == "" {
		opts.PathColor = "#E4572E"
	}
	r := &Rasterizer{tiles: tp, opts: opts}

	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		slog.Error("Raster: font unavailable, labels disabled", "error", err)
		r.opts.Labels = false
		r.opts.Attribution = false
		return r
	}
	r.label = truetype.NewFace(f, &truetype.Options{Size: opts.LabelSize})
	r.small = truetype.NewFace(f, &truetype.Options{Size: 10})
	return r
}

// Render draws s. Tiles that cannot be loaded leave the background visible.
func (r *Rasterizer) Render(ctx context.Context, s mapview.Snapshot) (*image.RGBA, error) {
	if s.Width <= 0 || s.Height <= 0 {
		return nil, errors.New("raster: empty viewport")
	}

	style, err := tiles.ParseStyle(s.Style)
	if err != nil {
		style = tiles.DefaultStyle
	}

	img := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	dc := gg.NewContextForRGBA(img)
	dc.SetColor(style.Background())
	dc.Clear()

	if r.tiles != nil {
		if err := r.drawTiles(ctx, img, s, style); err != nil {
			return nil, err
		}
	}

	r.drawLine(dc, s)
	r.drawLayers(dc, s)
	if r.opts.Attribution && r.small != nil {
		r.drawAttribution(dc, s, style)
	}
	return img, nil
}

func (r *Rasterizer) drawTiles(ctx context.Context, dst *image.RGBA, s mapview.Snapshot, style tiles.Style) error {
	if r.tiles.Style() != style {
		r.tiles.SetStyle(style)
	}

	z := int(math.Floor(s.Camera.Zoom))
	z = max(0, min(z, style.MaxZoom()))
	scale := math.Exp2(s.Camera.Zoom - float64(z))
	size := float64(mapview.TileSize) * scale

	for _, t := range tiles.Covering(s.Visible(), z) {
		if err := ctx.Err(); err != nil {
			return err
		}
		tile, err := r.tiles.Tile(ctx, t)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Debug("Raster: tile missing", "tile", t.String(), "error", err)
			continue
		}

		origin := geo.FromWorldPixel(float64(t.X*mapview.TileSize), float64(t.Y*mapview.TileSize), float64(z), mapview.TileSize)
		x, y := s.PixelOf(origin)
		rect := image.Rect(
			int(math.Floor(x)), int(math.Floor(y)),
			int(math.Ceil(x+size)), int(math.Ceil(y+size)),
		)
		draw.ApproxBiLinear.Scale(dst, rect, tile, tile.Bounds(), draw.Src, nil)
	}
	return nil
}

func (r *Rasterizer) drawLine(dc *gg.Context, s mapview.Snapshot) {
	if len(s.Line) < 2 {
		return
	}
	dc.SetHexColor(r.opts.PathColor)
	dc.SetLineWidth(r.opts.PathWidth)
	dc.SetLineCapRound()
	dc.SetLineJoinRound()
	for i, p := range s.Line {
		x, y := s.PixelOf(p)
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.Stroke()
}

func (r *Rasterizer) drawLayers(dc *gg.Context, s mapview.Snapshot) {
	for _, l := range s.Layers {
		x, y := s.PixelOf(l.Position)
		switch l.Kind {
		case mapview.KindPhoto:
			if l.Image == nil {
				continue
			}
			px, py := x+l.Offset[0], y+l.Offset[1]
			dc.SetColor(color.RGBA{0, 0, 0, 60})
			b := l.Image.Bounds()
			dc.DrawRectangle(px+2, py+3, float64(b.Dx()), float64(b.Dy()))
			dc.Fill()
			dc.DrawImage(l.Image, int(math.Round(px)), int(math.Round(py)))
		default:
			if l.Image != nil {
				dc.DrawImageAnchored(l.Image, int(math.Round(x+l.Offset[0])), int(math.Round(y+l.Offset[1])), 0.5, 0.5)
			} else {
				drawDot(dc, x, y, l)
			}
			if r.opts.Labels && l.Label != "" && r.label != nil {
				r.drawLabel(dc, x, y+l.Radius+4, l.Label)
			}
		}
	}
}

func drawDot(dc *gg.Context, x, y float64, l mapview.Layer) {
	radius := l.Radius
	if radius <= 0 {
		radius = 6
	}
	if l.Color != "" {
		dc.SetHexColor(l.Color)
	} else {
		dc.SetRGB(0.1, 0.6, 0.55)
	}
	dc.DrawCircle(x, y, radius)
	dc.Fill()
	dc.SetColor(color.White)
	dc.SetLineWidth(2)
	dc.DrawCircle(x, y, radius)
	dc.Stroke()
}

// drawLabel writes text centered below (x, y) with a light halo.
func (r *Rasterizer) drawLabel(dc *gg.Context, x, y float64, text string) {
	dc.SetFontFace(r.label)
	dc.SetColor(color.White)
	for dx := -1.0; dx <= 1; dx++ {
		for dy := -1.0; dy <= 1; dy++ {
			if dx != 0 || dy != 0 {
				dc.DrawStringAnchored(text, x+dx, y+dy, 0.5, 1)
			}
		}
	}
	dc.SetRGB(0.15, 0.15, 0.15)
	dc.DrawStringAnchored(text, x, y, 0.5, 1)
}

func (r *Rasterizer) drawAttribution(dc *gg.Context, s mapview.Snapshot, style tiles.Style) {
	text := style.Attribution()
	if text == "" {
		return
	}
	dc.SetFontFace(r.small)
	w, h := dc.MeasureString(text)
	x := float64(s.Width) - w - 8
	y := float64(s.Height) - 6

	dc.SetColor(color.RGBA{255, 255, 255, 180})
	dc.DrawRectangle(x-4, y-h-4, w+8, h+8)
	dc.Fill()
	dc.SetRGB(0.2, 0.2, 0.2)
	dc.DrawString(text, x, y)
}
