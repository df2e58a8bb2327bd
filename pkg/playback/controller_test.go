package playback

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripreel/pkg/geo"
	"tripreel/pkg/mapview"
	"tripreel/pkg/media"
	"tripreel/pkg/model"
	"tripreel/pkg/render"
	"tripreel/pkg/timing"
	"tripreel/pkg/view"
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

var (
	newYork   = orb.Point{-74.0, 40.7}
	london    = orb.Point{-0.1, 51.5}
	paris     = orb.Point{2.35, 48.85}
	brussels  = orb.Point{4.35, 50.85}
	amsterdam = orb.Point{4.90, 52.37}
)

// stubLoader fails sources listed in bad and returns a gray image otherwise.
type stubLoader struct {
	bad map[string]bool
}

func (l stubLoader) Load(_ context.Context, source string) (image.Image, error) {
	if l.bad[source] {
		return nil, &media.ImageLoadError{Source: source, Err: errors.New("404")}
	}
	return image.NewRGBA(image.Rect(0, 0, 120, 90)), nil
}

type recorder struct {
	mu     sync.Mutex
	clk    *timing.Virtual
	events []string
	times  map[string]time.Time
}

func (r *recorder) mark(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
	if r.times == nil {
		r.times = make(map[string]time.Time)
	}
	r.times[name] = r.clk.Now()
}

type fakeAudio struct{ rec *recorder }

func (a fakeAudio) Play() error { a.rec.mark("audio.play"); return nil }
func (a fakeAudio) Stop() error { a.rec.mark("audio.stop"); return nil }

type fakeCapture struct {
	rec      *recorder
	startErr error
}

func (c fakeCapture) Start(context.Context) error {
	if c.startErr != nil {
		return c.startErr
	}
	c.rec.mark("capture.start")
	return nil
}
func (c fakeCapture) Stop() error { c.rec.mark("capture.stop"); return nil }

type harness struct {
	clk  *timing.Virtual
	m    *mapview.Map
	view *view.Controller
	ctrl *Controller
	rec  *recorder

	states []Status
	frames []Status
}

func newHarness(t *testing.T, loader media.Loader) *harness {
	t.Helper()
	if loader == nil {
		loader = stubLoader{}
	}
	h := &harness{clk: timing.NewVirtual(t0, 25)}
	h.rec = &recorder{clk: h.clk}
	h.m = mapview.New(1280, 720, "osm_bright")
	h.view = view.NewController(h.m, h.clk, view.HeadlessDisplay{})
	h.ctrl = New(Deps{
		Clock:     h.clk,
		View:      h.view,
		Renderer:  render.NewRenderer(h.m, h.clk),
		Assembler: media.NewAssembler(loader, media.DefaultFrameOptions()),
		Audio:     fakeAudio{h.rec},
		Capture:   fakeCapture{rec: h.rec},
	})
	h.ctrl.OnState(func(s Status) {
		h.states = append(h.states, s)
		h.rec.mark("state." + s.State.String())
	})
	h.ctrl.OnFrame(func(s Status) { h.frames = append(h.frames, s) })
	return h
}

func (h *harness) stateNames() []string {
	var out []string
	for _, s := range h.states {
		out = append(out, s.State.String())
	}
	return out
}

func waypoints(points ...orb.Point) []model.Waypoint {
	out := make([]model.Waypoint, len(points))
	for i, p := range points {
		out[i] = model.Waypoint{ID: string(rune('a' + i)), Coordinates: p}
	}
	return out
}

func countLayers(m *mapview.Map, kind mapview.Kind) int {
	n := 0
	for _, l := range m.Snapshot().Layers {
		if l.Kind == kind {
			n++
		}
	}
	return n
}

func TestPlay_NewYorkToLondon(t *testing.T) {
	h := newHarness(t, nil)
	var zoomAfterPriming float64
	h.ctrl.OnState(func(s Status) {
		if s.State == AnimatingSegment && s.Segment == 0 {
			zoomAfterPriming = h.view.Zoom()
		}
	})

	require.NoError(t, h.ctrl.Play(context.Background(), waypoints(newYork, london), DefaultOptions()))

	assert.Equal(t, []string{"priming", "animating", "settling", "finishing", "idle"}, h.stateNames())
	assert.Equal(t, 4.0, zoomAfterPriming)
	assert.Equal(t, 4, h.states[1].Zoom)

	both := geo.Extend(geo.Extend(geo.EmptyBound(), geo.ToProjected(newYork)), geo.ToProjected(london))
	snap := h.m.Snapshot()
	assert.True(t, geo.ContainsBound(snap.Visible(), both), "final fit shows both points")

	finishing := h.rec.times["state.finishing"]
	assert.Equal(t, finishing.Add(DefaultOptions().SettleDelay), h.clk.Now(), "resolves one settle delay after finishing starts")
	// priming 5s + segment 10s + photo window 5s + settle 6s
	assert.Equal(t, 26*time.Second, h.clk.Now().Sub(t0))

	st := h.ctrl.Status()
	assert.True(t, st.Complete)
	assert.Equal(t, Idle, st.State)
	assert.Equal(t, 1, st.Segment)
	assert.Equal(t, 2, countLayers(h.m, mapview.KindMarker), "traveler removed, permanent markers stay")
	assert.False(t, h.ctrl.Running())
}

func TestPlay_Interpolation(t *testing.T) {
	h := newHarness(t, nil)
	opts := DefaultOptions()
	require.NoError(t, h.ctrl.Play(context.Background(), waypoints(newYork, london), opts))

	a, b := geo.ToProjected(newYork), geo.ToProjected(london)
	require.NotEmpty(t, h.frames)
	for _, f := range h.frames {
		if f.SegmentElapsed >= opts.SegmentDuration {
			continue
		}
		want := geo.Lerp(a, b, float64(f.SegmentElapsed)/float64(opts.SegmentDuration))
		assert.InDelta(t, want[0], f.Position[0], 1e-6)
		assert.InDelta(t, want[1], f.Position[1], 1e-6)
		require.Len(t, f.Rendered, f.Segment+2, "partial segment renders prefix plus position")
	}

	last := h.frames[len(h.frames)-1]
	assert.Equal(t, b, last.Position, "segment ends exactly on its endpoint")
	assert.Len(t, last.Rendered, last.Segment+1)

	// 10s at 25 fps: 249 partial frames plus the completion frame
	assert.Len(t, h.frames, 250)
}

func TestPlay_SegmentMonotonicAndZoomAtBoundaries(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.ctrl.Play(context.Background(), waypoints(paris, brussels, amsterdam), DefaultOptions()))

	all := append(append([]Status{}, h.frames...), h.states...)
	prev := 0
	reachedTotal := 0
	for _, f := range h.frames {
		assert.GreaterOrEqual(t, f.Segment, prev)
		if f.Segment == 2 && prev != 2 {
			reachedTotal++
		}
		prev = f.Segment
	}
	assert.Equal(t, 1, reachedTotal)
	assert.NotEmpty(t, all)

	zoomBySegment := map[int]int{}
	for _, f := range h.frames {
		if f.SegmentElapsed == 0 || f.SegmentElapsed >= DefaultOptions().SegmentDuration {
			continue
		}
		if z, ok := zoomBySegment[f.Segment]; ok {
			assert.Equal(t, z, f.Zoom, "zoom constant while segment %d animates", f.Segment)
		}
		zoomBySegment[f.Segment] = f.Zoom
	}
	assert.Equal(t, 9, zoomBySegment[0])
	assert.Equal(t, 10, zoomBySegment[1])

	assert.Equal(t, []string{
		"priming", "animating", "settling", "animating", "settling", "finishing", "idle",
	}, h.stateNames())
	// priming 5 + 2 x (segment 10 + photos 5) + one re-zoom 3 + settle 6
	assert.Equal(t, 44*time.Second, h.clk.Now().Sub(t0))
	assert.Equal(t, 3, countLayers(h.m, mapview.KindMarker))
}

func TestPlay_SingleWaypoint(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.ctrl.Play(context.Background(), waypoints(paris), DefaultOptions()))

	assert.Equal(t, []string{"priming", "finishing", "idle"}, h.stateNames())
	assert.Empty(t, h.frames, "no segment animation")
	assert.Equal(t, 1, countLayers(h.m, mapview.KindMarker))
	assert.Equal(t, 11*time.Second, h.clk.Now().Sub(t0))
	assert.Equal(t, 0, h.ctrl.Status().Segments)
}

func TestPlay_ZeroLengthSegmentKeepsDuration(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.ctrl.Play(context.Background(), waypoints(paris, paris), DefaultOptions()))
	assert.Equal(t, 26*time.Second, h.clk.Now().Sub(t0))
	assert.Len(t, h.frames, 250)
}

func TestPlay_RecordWithoutCapture(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.deps.Capture = nil

	opts := DefaultOptions()
	opts.RecordVideo = true
	require.NoError(t, h.ctrl.Play(context.Background(), waypoints(paris), opts))
	for _, s := range h.states {
		assert.False(t, s.Recording)
	}
	assert.NotContains(t, h.rec.events, "capture.start")
}

func TestPlay_PhotosSkipFailures(t *testing.T) {
	h := newHarness(t, stubLoader{bad: map[string]bool{"b.jpg": true}})
	wps := waypoints(newYork, london)
	wps[0].Photos = []string{"a.jpg", "b.jpg", "c.jpg"}
	wps[1].Photos = []string{"d.jpg"}

	require.NoError(t, h.ctrl.Play(context.Background(), wps, DefaultOptions()))

	var photos []mapview.Layer
	for _, l := range h.m.Snapshot().Layers {
		if l.Kind == mapview.KindPhoto {
			photos = append(photos, l)
		}
	}
	require.Len(t, photos, 3)
	assert.Equal(t, "a.jpg", photos[0].Label)
	assert.Equal(t, "c.jpg", photos[1].Label)
	assert.Equal(t, "d.jpg", photos[2].Label)
	assert.Equal(t, render.PhotoOffset(0, 101, 124), photos[0].Offset)
	assert.Equal(t, render.PhotoOffset(1, 101, 124), photos[1].Offset)
	assert.Equal(t, 3, h.ctrl.Status().Photos)
}

func TestPlay_AudioAndCapture(t *testing.T) {
	h := newHarness(t, nil)
	opts := DefaultOptions()
	opts.PlayAudio = true
	opts.RecordVideo = true

	var duringSegment Status
	h.ctrl.OnState(func(s Status) {
		if s.State == AnimatingSegment {
			duringSegment = s
		}
	})
	require.NoError(t, h.ctrl.Play(context.Background(), waypoints(newYork, london), opts))

	assert.True(t, duringSegment.Recording)
	assert.True(t, duringSegment.Audio)
	assert.Equal(t, t0.Add(opts.AudioDelay), h.rec.times["audio.play"])

	var order []string
	for _, e := range h.rec.events {
		switch e {
		case "capture.start", "audio.play", "audio.stop", "capture.stop", "state.finishing", "state.idle":
			order = append(order, e)
		}
	}
	assert.Equal(t, []string{"capture.start", "audio.play", "state.finishing", "audio.stop", "capture.stop", "state.idle"}, order)

	st := h.ctrl.Status()
	assert.False(t, st.Recording)
	assert.False(t, st.Audio)
}

func TestPlay_CaptureStartFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.deps.Capture = fakeCapture{rec: h.rec, startErr: errors.New("ffmpeg not found")}
	opts := DefaultOptions()
	opts.RecordVideo = true

	err := h.ctrl.Play(context.Background(), waypoints(newYork, london), opts)
	require.Error(t, err)
	assert.Equal(t, Idle, h.ctrl.Status().State)
	assert.False(t, h.ctrl.Running())
}

func TestPlay_Cancel(t *testing.T) {
	h := newHarness(t, nil)
	opts := DefaultOptions()
	opts.PlayAudio = true
	opts.RecordVideo = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.ctrl.OnFrame(func(s Status) {
		if s.SegmentElapsed >= 2*time.Second {
			cancel()
		}
	})

	err := h.ctrl.Play(ctx, waypoints(newYork, london, paris), opts)
	assert.ErrorIs(t, err, context.Canceled)

	st := h.ctrl.Status()
	assert.Equal(t, Idle, st.State)
	assert.False(t, st.Complete)
	assert.Equal(t, 0, st.Segment)
	assert.Contains(t, h.rec.events, "audio.stop")
	assert.Contains(t, h.rec.events, "capture.stop")
	for _, l := range h.m.Snapshot().Layers {
		assert.NotEqual(t, render.TravelerZ, l.Z, "traveler removed")
	}

	// the controller is reusable after a cancel
	require.NoError(t, h.ctrl.Play(context.Background(), waypoints(paris), DefaultOptions()))
}

func TestPlay_Validation(t *testing.T) {
	h := newHarness(t, nil)

	assert.ErrorIs(t, h.ctrl.Play(context.Background(), nil, DefaultOptions()), ErrNoWaypoints)

	bad := waypoints(paris, orb.Point{10, 95})
	err := h.ctrl.Play(context.Background(), bad, DefaultOptions())
	var mce *model.MalformedCoordinatesError
	require.ErrorAs(t, err, &mce)
	assert.Empty(t, h.states, "nothing animated for a rejected itinerary")
	assert.Empty(t, h.m.Snapshot().Layers)
}

func TestPlay_Busy(t *testing.T) {
	h := newHarness(t, nil)
	var nested error
	h.ctrl.OnState(func(s Status) {
		if s.State == Priming {
			nested = h.ctrl.Play(context.Background(), waypoints(paris), DefaultOptions())
		}
	})
	require.NoError(t, h.ctrl.Play(context.Background(), waypoints(paris), DefaultOptions()))
	assert.ErrorIs(t, nested, ErrBusy)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "settling", SegmentSettling.String())
	assert.Equal(t, "state(9)", State(9).String())
	b, err := Finishing.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "finishing", string(b))
}
