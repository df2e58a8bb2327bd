// Package mapview holds the live state of the animated map: camera,
// layers, drawn line and display flags. It is safe for concurrent use;
// the playback goroutine writes it while the API and rasteriser read
// snapshots.
package mapview

import (
	"image"
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"tripreel/pkg/geo"
)

// Zoom limits of the camera.
const (
	MinZoom = 0.0
	MaxZoom = 20.0
)

// Kind classifies layers.
type Kind string

// Layer kinds.
const (
	KindMarker   Kind = "marker"
	KindAnimated Kind = "animated"
	KindPhoto    Kind = "photo"
)

// Layer is one overlay drawn above the tiles. Positions are projected;
// Offset is the pixel offset of the layer's top-left corner (photos) or
// center (markers) from Position. Higher Z draws on top; equal Z keeps
// insertion order.
type Layer struct {
	ID       int         `json:"id"`
	Kind     Kind        `json:"kind"`
	Position orb.Point   `json:"position"`
	LonLat   orb.Point   `json:"lonlat"`
	Offset   [2]float64  `json:"offset"`
	Label    string      `json:"label,omitempty"`
	Color    string      `json:"color,omitempty"`
	Radius   float64     `json:"radius,omitempty"`
	Frame    int         `json:"frame"`
	Z        int         `json:"z"`
	Image    image.Image `json:"-"`
	ImageURL string      `json:"image,omitempty"`
}

// Camera is the view center (projected) and fractional zoom.
type Camera struct {
	Center orb.Point `json:"center"`
	Zoom   float64   `json:"zoom"`
}

// Target is an animation goal; nil fields keep their current value.
type Target struct {
	Center *orb.Point
	Zoom   *float64
}

type animation struct {
	from, to Camera
	start    time.Time
	duration time.Duration
}

// Map is the live map view.
type Map struct {
	mu sync.RWMutex

	width, height int
	camera        Camera
	anim          *animation
	style         string
	line          orb.LineString
	layers        []*Layer
	nextID        int
	fullscreen    bool
	closeVisible  bool
	version       uint64
}

// New creates a map view of w x h pixels centered on null island.
func New(w, h int, style string) *Map {
	return &Map{width: w, height: h, style: style, nextID: 1}
}

func (m *Map) touch() { m.version++ }

// Size returns the viewport size in pixels.
func (m *Map) Size() (w, h int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.width, m.height
}

// Version increases on every change.
func (m *Map) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Camera returns the current camera.
func (m *Map) Camera() Camera {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.camera
}

func clampZoom(z float64) float64 {
	if math.IsNaN(z) {
		return MinZoom
	}
	return math.Max(MinZoom, math.Min(MaxZoom, z))
}

// SetCamera jumps to c, cancelling any running animation.
func (m *Map) SetCamera(c Camera) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Zoom = clampZoom(c.Zoom)
	m.anim = nil
	m.camera = c
	m.touch()
}

// Animate starts an eased transition from the current camera to t. A zero
// or negative duration jumps. A new call replaces the running animation,
// starting from where that animation stands at now.
func (m *Map) Animate(t Target, d time.Duration, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.advance(now)
	to := m.camera
	if t.Center != nil {
		to.Center = *t.Center
	}
	if t.Zoom != nil {
		to.Zoom = clampZoom(*t.Zoom)
	}

	if d <= 0 {
		m.anim = nil
		m.camera = to
		m.touch()
		return
	}
	m.anim = &animation{from: m.camera, to: to, start: now, duration: d}
}

// Advance moves a running animation to now. It reports whether the camera changed.
func (m *Map) Advance(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.advance(now)
}

func (m *Map) advance(now time.Time) bool {
	if m.anim == nil {
		return false
	}

	a := m.anim
	progress := float64(now.Sub(a.start)) / float64(a.duration)
	if progress >= 1 {
		m.camera = a.to
		m.anim = nil
		m.touch()
		return true
	}
	if progress < 0 {
		progress = 0
	}
	k := easeInOut(progress)
	m.camera = Camera{
		Center: geo.Lerp(a.from.Center, a.to.Center, k),
		Zoom:   a.from.Zoom + (a.to.Zoom-a.from.Zoom)*k,
	}
	m.touch()
	return true
}

// Animating reports whether an animation is in flight.
func (m *Map) Animating() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.anim != nil
}

func easeInOut(t float64) float64 {
	return t * t * (3 - 2*t)
}

// Style returns the active tile style name.
func (m *Map) Style() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.style
}

// SetStyle changes the tile style.
func (m *Map) SetStyle(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.style = s
	m.touch()
}

// SetLine replaces the drawn line (projected coordinates).
func (m *Map) SetLine(ls orb.LineString) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.line = append(orb.LineString(nil), ls...)
	m.touch()
}

// Line returns a copy of the drawn line.
func (m *Map) Line() orb.LineString {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append(orb.LineString(nil), m.line...)
}

// AddLayer appends a layer and returns its id.
func (m *Map) AddLayer(l Layer) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = m.nextID
	m.nextID++
	m.layers = append(m.layers, &l)
	m.touch()
	return l.ID
}

func (m *Map) find(id int) (int, *Layer) {
	for i, l := range m.layers {
		if l.ID == id {
			return i, l
		}
	}
	return -1, nil
}

// MoveLayer sets a layer's position.
func (m *Map) MoveLayer(id int, projected, lonlat orb.Point) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, l := m.find(id)
	if l == nil {
		return false
	}
	l.Position = projected
	l.LonLat = lonlat
	m.touch()
	return true
}

// SetLayerImage swaps a layer's image, e.g. for the next animation frame.
func (m *Map) SetLayerImage(id, frame int, img image.Image) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, l := m.find(id)
	if l == nil {
		return false
	}
	if l.Frame == frame && l.Image == img {
		return true
	}
	l.Frame = frame
	l.Image = img
	m.touch()
	return true
}

// RemoveLayer deletes a layer. It reports whether the layer existed.
func (m *Map) RemoveLayer(id int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, l := m.find(id)
	if l == nil {
		return false
	}
	m.layers = append(m.layers[:i], m.layers[i+1:]...)
	m.touch()
	return true
}

// Layer returns a copy of a layer.
func (m *Map) Layer(id int) (Layer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, l := m.find(id)
	if l == nil {
		return Layer{}, false
	}
	return *l, true
}

// ClearLayers removes every layer and the line.
func (m *Map) ClearLayers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.layers = nil
	m.line = nil
	m.touch()
}

// SetFullscreen records the display's fullscreen state.
func (m *Map) SetFullscreen(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fullscreen != on {
		m.fullscreen = on
		m.touch()
	}
}

// Fullscreen reports the recorded fullscreen state.
func (m *Map) Fullscreen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fullscreen
}

// SetCloseVisible shows or hides the close affordance.
func (m *Map) SetCloseVisible(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closeVisible != on {
		m.closeVisible = on
		m.touch()
	}
}

// CloseVisible reports whether the close affordance is shown.
func (m *Map) CloseVisible() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closeVisible
}
