package mapview

import (
	"sort"

	"github.com/paulmach/orb"

	"tripreel/pkg/geo"
)

// TileSize is the logical tile size the camera zoom refers to.
const TileSize = 256

// Snapshot is an immutable copy of the map state.
type Snapshot struct {
	Version      uint64         `json:"version"`
	Width        int            `json:"width"`
	Height       int            `json:"height"`
	Camera       Camera         `json:"camera"`
	CenterLonLat orb.Point      `json:"center_lonlat"`
	Style        string         `json:"style"`
	Line         orb.LineString `json:"line"`
	LineLonLat   orb.LineString `json:"line_lonlat"`
	Layers       []Layer        `json:"layers"`
	Fullscreen   bool           `json:"fullscreen"`
	CloseVisible bool           `json:"close_visible"`
}

// Snapshot copies the current state.
func (m *Map) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		Version:      m.version,
		Width:        m.width,
		Height:       m.height,
		Camera:       m.camera,
		CenterLonLat: geo.ToGeographic(m.camera.Center),
		Style:        m.style,
		Line:         append(orb.LineString(nil), m.line...),
		Layers:       make([]Layer, len(m.layers)),
		Fullscreen:   m.fullscreen,
		CloseVisible: m.closeVisible,
	}
	s.LineLonLat = make(orb.LineString, len(m.line))
	for i, p := range m.line {
		s.LineLonLat[i] = geo.ToGeographic(p)
	}
	for i, l := range m.layers {
		s.Layers[i] = *l
	}
	sort.SliceStable(s.Layers, func(i, j int) bool { return s.Layers[i].Z < s.Layers[j].Z })
	return s
}

// Resolution returns meters per pixel at the snapshot's zoom.
func (s *Snapshot) Resolution() float64 {
	return geo.Resolution(s.Camera.Zoom, TileSize)
}

// PixelOf converts a projected point into viewport pixel coordinates.
func (s *Snapshot) PixelOf(p orb.Point) (x, y float64) {
	res := s.Resolution()
	x = (p[0]-s.Camera.Center[0])/res + float64(s.Width)/2
	y = (s.Camera.Center[1]-p[1])/res + float64(s.Height)/2
	return x, y
}

// PointAt converts viewport pixel coordinates into a projected point.
func (s *Snapshot) PointAt(x, y float64) orb.Point {
	res := s.Resolution()
	return orb.Point{
		s.Camera.Center[0] + (x-float64(s.Width)/2)*res,
		s.Camera.Center[1] - (y-float64(s.Height)/2)*res,
	}
}

// Visible returns the projected bound covered by the viewport.
func (s *Snapshot) Visible() orb.Bound {
	return orb.Bound{
		Min: s.PointAt(0, float64(s.Height)),
		Max: s.PointAt(float64(s.Width), 0),
	}
}
