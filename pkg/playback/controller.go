// Package playback runs the itinerary animation: it draws the route
// segment by segment while the view follows, places photos at each stop
// and fits the whole trip into view at the end.
package playback

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"tripreel/pkg/geo"
	"tripreel/pkg/media"
	"tripreel/pkg/model"
	"tripreel/pkg/render"
	"tripreel/pkg/timing"
)

var (
	// ErrBusy is returned when Play is called while a playback runs.
	ErrBusy = errors.New("playback already running")
	// ErrNoWaypoints is returned for an empty itinerary.
	ErrNoWaypoints = errors.New("no waypoints")
)

// View moves the camera. Coordinates are projected.
type View interface {
	PanZoomTo(center orb.Point, zoom float64, d time.Duration)
	JumpTo(center orb.Point)
	ZoomTo(zoom float64, d time.Duration)
	FitToBounds(b orb.Bound, padding int, d time.Duration)
	EnterFullscreen() bool
	ExitFullscreen()
}

// Renderer places layers and tracks their bounding box.
type Renderer interface {
	PlaceMarker(coords orb.Point, style *render.MarkerStyle) render.Handle
	PlaceAnimatedMarker(coords orb.Point, img *render.AnimatedImage) render.Handle
	MoveMarker(h render.Handle, coords orb.Point) bool
	PlacePhotoNear(coords orb.Point, thumb *media.Thumbnail, slot, count int) render.Handle
	RemoveMarker(h render.Handle) bool
	SetLine(ls orb.LineString)
	Bound() orb.Bound
	Reset()
}

// Assembler turns photo sources into framed thumbnails, skipping failures.
type Assembler interface {
	FrameAll(ctx context.Context, sources []string, size int) []*media.Thumbnail
}

// AudioPlayer is the background music.
type AudioPlayer interface {
	Play() error
	Stop() error
}

// Capturer records the playback.
type Capturer interface {
	Start(ctx context.Context) error
	Stop() error
}

// Deps are the collaborators of a Controller. Audio, Capture, Traveler
// and MarkerIcon are optional.
type Deps struct {
	Clock     timing.Clock
	View      View
	Renderer  Renderer
	Assembler Assembler
	Audio     AudioPlayer
	Capture   Capturer

	Traveler   *render.AnimatedImage
	MarkerIcon image.Image
}

// travelerStyle marks the moving position when no traveler image is set.
var travelerStyle = &render.MarkerStyle{Color: "#E4572E", Radius: 8, Z: render.TravelerZ}

// Controller plays one itinerary at a time. Create one per session.
type Controller struct {
	deps Deps

	mu      sync.Mutex
	running bool
	status  Status
	onState []func(Status)
	onFrame []func(Status)
}

// New creates an idle controller.
func New(deps Deps) *Controller {
	return &Controller{deps: deps}
}

// OnState registers fn to run after every state transition.
func (c *Controller) OnState(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = append(c.onState, fn)
}

// OnFrame registers fn to run after every animation frame.
func (c *Controller) OnFrame(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFrame = append(c.onFrame, fn)
}

// Status returns a copy of the current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status.clone()
}

// Running reports whether Play is in progress.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// update applies fn to the status under the lock and returns a copy.
func (c *Controller) update(fn func(s *Status)) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.status)
	return c.status.clone()
}

func (c *Controller) transition(st State) {
	s := c.update(func(s *Status) { s.State = st })
	slog.Debug("Playback: state", "state", st.String(), "segment", s.Segment)

	c.mu.Lock()
	hooks := append([]func(Status){}, c.onState...)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn(s)
	}
}

func (c *Controller) frame(s Status) {
	c.mu.Lock()
	hooks := append([]func(Status){}, c.onFrame...)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn(s)
	}
}

// Play validates waypoints and runs the whole animation. It blocks until
// the playback finished or ctx is cancelled; on cancellation the partial
// scene is torn down and ctx.Err() returned.
func (c *Controller) Play(ctx context.Context, waypoints []model.Waypoint, opts Options) error {
	if len(waypoints) == 0 {
		return ErrNoWaypoints
	}
	if err := model.ValidateWaypoints(waypoints); err != nil {
		return err
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrBusy
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	r := &run{
		c:     c,
		deps:  c.deps,
		opts:  withDefaults(opts),
		wps:   waypoints,
		path:  make([]orb.Point, len(waypoints)),
		start: c.deps.Clock.Now(),
	}
	for i, wp := range waypoints {
		r.path[i] = geo.ToProjected(wp.Coordinates)
	}

	err := r.play(ctx)
	if err != nil {
		if !r.done {
			r.teardown()
		}
		if ctx.Err() == nil {
			slog.Error("Playback: failed", "error", err)
		} else {
			slog.Info("Playback: cancelled", "segment", c.Status().Segment)
		}
		return err
	}
	return nil
}

// withDefaults replaces every zero or negative pacing field with its
// default, so a partial Options plays at the standard pace.
func withDefaults(o Options) Options {
	d := DefaultOptions()
	fill := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&o.SegmentDuration, d.SegmentDuration)
	fill(&o.PrimingDelay, d.PrimingDelay)
	fill(&o.PhotoWindow, d.PhotoWindow)
	fill(&o.ZoomDuration, d.ZoomDuration)
	fill(&o.SettleDelay, d.SettleDelay)
	fill(&o.FitDuration, d.FitDuration)
	fill(&o.AudioDelay, d.AudioDelay)
	if o.FitPadding <= 0 {
		o.FitPadding = d.FitPadding
	}
	if o.ThumbnailSize <= 0 {
		o.ThumbnailSize = d.ThumbnailSize
	}
	if o.InitialZoom <= 0 {
		o.InitialZoom = d.InitialZoom
	}
	return o
}
