// Package view moves the map camera and manages the display it is shown on.
package view

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"tripreel/pkg/geo"
	"tripreel/pkg/mapview"
	"tripreel/pkg/tiles"
	"tripreel/pkg/timing"
)

// Controller drives the camera of a mapview.Map. Coordinates are projected.
type Controller struct {
	m       *mapview.Map
	clock   timing.Clock
	display Display

	mu     sync.Mutex
	detach func()
}

// NewController attaches a controller to m. Camera animations advance on
// every frame of clock.
func NewController(m *mapview.Map, clock timing.Clock, display Display) *Controller {
	if display == nil {
		display = HeadlessDisplay{}
	}
	c := &Controller{m: m, clock: clock, display: display}
	c.detach = clock.OnFrame(func(now time.Time) { m.Advance(now) })
	return c
}

// Close stops following clock frames.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detach != nil {
		c.detach()
		c.detach = nil
	}
}

// Map returns the controlled map.
func (c *Controller) Map() *mapview.Map { return c.m }

// PanZoomTo animates to center and zoom over d. A running animation is
// replaced, not queued.
func (c *Controller) PanZoomTo(center orb.Point, zoom float64, d time.Duration) {
	c.m.Animate(mapview.Target{Center: &center, Zoom: &zoom}, d, c.clock.Now())
}

// JumpTo re-centers immediately, keeping the zoom.
func (c *Controller) JumpTo(center orb.Point) {
	c.m.Animate(mapview.Target{Center: &center}, 0, c.clock.Now())
}

// ZoomTo animates the zoom only.
func (c *Controller) ZoomTo(zoom float64, d time.Duration) {
	c.m.Animate(mapview.Target{Zoom: &zoom}, d, c.clock.Now())
}

// Zoom returns the current camera zoom.
func (c *Controller) Zoom() float64 { return c.m.Camera().Zoom }

// Center returns the current camera center.
func (c *Controller) Center() orb.Point { return c.m.Camera().Center }

// FitToBounds animates so that b is fully visible with padding pixels on
// every side.
func (c *Controller) FitToBounds(b orb.Bound, padding int, d time.Duration) {
	if geo.IsEmpty(b) {
		slog.Debug("View: fit skipped, empty bounds")
		return
	}
	w, h := c.m.Size()
	center, zoom := FitCamera(b, w, h, padding)
	c.PanZoomTo(center, zoom, d)
}

// FitCamera returns the camera that shows b inside a w x h viewport with
// padding on every side. The padding shrinks to half the viewport when it
// would leave no room.
func FitCamera(b orb.Bound, w, h, padding int) (orb.Point, float64) {
	aw := float64(w - 2*padding)
	ah := float64(h - 2*padding)
	if aw <= 0 {
		aw = float64(w) / 2
	}
	if ah <= 0 {
		ah = float64(h) / 2
	}

	res := math.Max((b.Max[0]-b.Min[0])/aw, (b.Max[1]-b.Min[1])/ah)
	zoom := mapview.MaxZoom
	if res > 0 {
		zoom = math.Min(mapview.MaxZoom, math.Max(mapview.MinZoom, geo.ZoomForResolution(res, mapview.TileSize)))
	}
	return b.Center(), zoom
}

// EnterFullscreen tries the standard request, then the prefixed one. When
// both fail the view is scrolled into sight instead and false is returned.
func (c *Controller) EnterFullscreen() bool {
	err := c.display.RequestFullscreen()
	if err != nil {
		err = c.display.WebkitRequestFullscreen()
	}
	if err != nil {
		slog.Info("View: fullscreen unavailable, scrolling into view", "error", err)
		if serr := c.display.ScrollIntoView(); serr != nil {
			slog.Warn("View: scroll into view failed", "error", serr)
		}
		return false
	}

	c.m.SetFullscreen(true)
	c.m.SetCloseVisible(true)
	c.display.SetCloseVisible(true)
	return true
}

// ExitFullscreen leaves fullscreen if active and then hides the close
// control. Failures are logged.
func (c *Controller) ExitFullscreen() {
	if !c.display.IsFullscreen() {
		return
	}
	if err := c.display.ExitFullscreen(); err != nil {
		slog.Warn("View: exit fullscreen failed", "error", err)
		return
	}
	c.m.SetFullscreen(false)
	c.m.SetCloseVisible(false)
	c.display.SetCloseVisible(false)
}

// SetStyle switches the tile style. Unknown names are logged and change nothing.
func (c *Controller) SetStyle(name string) error {
	st, err := tiles.ParseStyle(name)
	if err != nil {
		slog.Warn("View: ignoring map style", "style", name, "error", err)
		return err
	}
	c.m.SetStyle(string(st))
	return nil
}
