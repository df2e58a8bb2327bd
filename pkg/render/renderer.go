// Package render places markers, photos and the drawn line on the map and
// tracks the bounding box of everything placed.
package render

import (
	"image"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"tripreel/pkg/geo"
	"tripreel/pkg/mapview"
	"tripreel/pkg/media"
	"tripreel/pkg/timing"
)

// Handle identifies a placed layer. The zero Handle is never issued.
type Handle int

// photoGap is the pixel gap between a point and its photos.
const photoGap = 40

// Default marker look.
const (
	DefaultMarkerColor = "#1B998B"
	DefaultMarkerSize  = 6
)

// Layer stacking: the moving marker stays above markers and photos.
const (
	BaseZ     = 100
	TravelerZ = 1000
)

// MarkerStyle customises a static marker. A nil style draws the default dot.
type MarkerStyle struct {
	Icon   image.Image
	Color  string
	Radius float64
	Label  string
	Z      int
}

type animatedMarker struct {
	img   *AnimatedImage
	start time.Time
	frame int
}

// Renderer owns the layers of a mapview.Map. Coordinates are projected.
type Renderer struct {
	m     *mapview.Map
	clock timing.Clock

	mu       sync.Mutex
	bound    orb.Bound
	animated map[Handle]*animatedMarker
	detach   func()
}

// NewRenderer attaches a renderer to m. Animated markers pick their frame
// on every clock frame.
func NewRenderer(m *mapview.Map, clock timing.Clock) *Renderer {
	r := &Renderer{
		m:        m,
		clock:    clock,
		bound:    geo.EmptyBound(),
		animated: make(map[Handle]*animatedMarker),
	}
	r.detach = clock.OnFrame(r.tick)
	return r
}

// Close stops animating markers.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detach != nil {
		r.detach()
		r.detach = nil
	}
}

func (r *Renderer) tick(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h, am := range r.animated {
		idx := am.img.FrameIndex(now.Sub(am.start))
		if idx == am.frame {
			continue
		}
		am.frame = idx
		r.m.SetLayerImage(int(h), idx, am.img.Frames[idx])
	}
}

func (r *Renderer) extend(p orb.Point) {
	r.bound = geo.Extend(r.bound, p)
}

// PlaceMarker adds a static marker at coords.
func (r *Renderer) PlaceMarker(coords orb.Point, style *MarkerStyle) Handle {
	l := mapview.Layer{
		Kind:     mapview.KindMarker,
		Position: coords,
		LonLat:   geo.ToGeographic(coords),
		Color:    DefaultMarkerColor,
		Radius:   DefaultMarkerSize,
		Z:        BaseZ,
	}
	if style != nil {
		l.Image = style.Icon
		l.Label = style.Label
		if style.Z != 0 {
			l.Z = style.Z
		}
		if style.Color != "" {
			l.Color = style.Color
		}
		if style.Radius > 0 {
			l.Radius = style.Radius
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	h := Handle(r.m.AddLayer(l))
	r.extend(coords)
	return h
}

// PlaceAnimatedMarker adds a marker whose image follows img's frames.
func (r *Renderer) PlaceAnimatedMarker(coords orb.Point, img *AnimatedImage) Handle {
	l := mapview.Layer{
		Kind:     mapview.KindAnimated,
		Position: coords,
		LonLat:   geo.ToGeographic(coords),
		Color:    DefaultMarkerColor,
		Radius:   DefaultMarkerSize,
		Z:        TravelerZ,
	}
	if img != nil && len(img.Frames) > 0 {
		l.Image = img.Frames[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	h := Handle(r.m.AddLayer(l))
	if img != nil && len(img.Frames) > 1 {
		r.animated[h] = &animatedMarker{img: img, start: r.clock.Now()}
	}
	r.extend(coords)
	return h
}

// MoveMarker relocates a marker. It does not grow the bounding box.
func (r *Renderer) MoveMarker(h Handle, coords orb.Point) bool {
	return r.m.MoveLayer(int(h), coords, geo.ToGeographic(coords))
}

// PhotoOffset returns the top-left pixel offset of photo slot relative to
// its point: west, south and east in turn.
func PhotoOffset(slot, w, h int) [2]float64 {
	switch ((slot % 3) + 3) % 3 {
	case 0:
		return [2]float64{-float64(w + photoGap), -float64(h) / 2}
	case 1:
		return [2]float64{-float64(w) / 2, photoGap}
	default:
		return [2]float64{photoGap, -float64(h) / 2}
	}
}

// PlacePhotoNear shows a thumbnail next to coords in the slot's direction.
func (r *Renderer) PlacePhotoNear(coords orb.Point, thumb *media.Thumbnail, slot, count int) Handle {
	l := mapview.Layer{
		Kind:     mapview.KindPhoto,
		Position: coords,
		LonLat:   geo.ToGeographic(coords),
		Offset:   PhotoOffset(slot, thumb.Width(), thumb.Height()),
		Image:    thumb.Image,
		ImageURL: thumb.DataURL,
		Label:    thumb.Source,
		Z:        BaseZ,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	h := Handle(r.m.AddLayer(l))
	r.extend(coords)
	return h
}

// RemoveMarker removes a placed layer. Removing twice is harmless.
func (r *Renderer) RemoveMarker(h Handle) bool {
	r.mu.Lock()
	delete(r.animated, h)
	r.mu.Unlock()
	return r.m.RemoveLayer(int(h))
}

// SetLine replaces the drawn route line.
func (r *Renderer) SetLine(ls orb.LineString) {
	r.m.SetLine(ls)
}

// Bound returns the extent of everything placed since the last Reset.
func (r *Renderer) Bound() orb.Bound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bound
}

// Reset clears every layer and the bounding box.
func (r *Renderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bound = geo.EmptyBound()
	clear(r.animated)
	r.m.ClearLayers()
}
