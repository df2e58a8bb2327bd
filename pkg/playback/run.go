package playback

import (
	"context"
	"log/slog"
	"time"

	"github.com/paulmach/orb"

	"tripreel/pkg/geo"
	"tripreel/pkg/media"
	"tripreel/pkg/model"
	"tripreel/pkg/render"
	"tripreel/pkg/timing"
)

// run is the state of one Play call.
type run struct {
	c     *Controller
	deps  Deps
	opts  Options
	wps   []model.Waypoint
	path  []orb.Point
	start time.Time

	traveler    render.Handle
	hasTraveler bool
	audioOn     bool
	captureOn   bool
	zoom        int
	prefix      orb.LineString
	photos      int
	done        bool
}

func (r *run) play(ctx context.Context) error {
	if err := r.prime(ctx); err != nil {
		return err
	}

	next := r.assemble(ctx, 1)
	for i := 0; i < len(r.path)-1; i++ {
		if err := r.animate(ctx, i); err != nil {
			return err
		}

		var thumbs []*media.Thumbnail
		select {
		case thumbs = <-next:
		case <-ctx.Done():
			return ctx.Err()
		}
		next = r.assemble(ctx, i+2)

		if err := r.settle(ctx, i+1, thumbs); err != nil {
			return err
		}
	}
	return r.finish(ctx)
}

// assemble frames waypoint idx's photos in the background.
func (r *run) assemble(ctx context.Context, idx int) <-chan []*media.Thumbnail {
	ch := make(chan []*media.Thumbnail, 1)
	if idx >= len(r.wps) || len(r.wps[idx].Photos) == 0 {
		ch <- nil
		return ch
	}
	sources := r.wps[idx].Photos
	go func() {
		ch <- r.deps.Assembler.FrameAll(ctx, sources, r.opts.ThumbnailSize)
	}()
	return ch
}

func (r *run) nextCoords(idx int) *orb.Point {
	if idx+1 >= len(r.wps) {
		return nil
	}
	p := r.wps[idx+1].Coordinates
	return &p
}

func (r *run) markerStyle(idx int) *render.MarkerStyle {
	return &render.MarkerStyle{Icon: r.deps.MarkerIcon, Label: r.wps[idx].Label()}
}

func (r *run) prime(ctx context.Context) error {
	p0 := r.path[0]
	r.c.update(func(s *Status) {
		*s = Status{
			Segments:  len(r.path) - 1,
			Waypoints: len(r.wps),
			Rendered:  []orb.Point{p0},
			Position:  p0,
			Zoom:      r.opts.InitialZoom,
			Bound:     geo.EmptyBound(),
			StartedAt: r.start,
		}
	})
	r.c.transition(Priming)
	slog.Info("Playback: started", "waypoints", len(r.wps), "record", r.opts.RecordVideo, "audio", r.opts.PlayAudio)

	r.deps.Renderer.Reset()
	if r.opts.Fullscreen {
		r.deps.View.EnterFullscreen()
	}
	if r.opts.RecordVideo && r.deps.Capture == nil {
		slog.Warn("Playback: recording requested but no capture is configured")
	}
	if r.opts.RecordVideo && r.deps.Capture != nil {
		if err := r.deps.Capture.Start(ctx); err != nil {
			return err
		}
		r.captureOn = true
		r.c.update(func(s *Status) { s.Recording = true })
	}

	if r.deps.Traveler != nil {
		r.traveler = r.deps.Renderer.PlaceAnimatedMarker(p0, r.deps.Traveler)
	} else {
		r.traveler = r.deps.Renderer.PlaceMarker(p0, travelerStyle)
	}
	r.hasTraveler = true
	r.deps.Renderer.PlaceMarker(p0, r.markerStyle(0))
	r.prefix = orb.LineString{p0}
	r.deps.Renderer.SetLine(r.prefix)

	r.zoom = geo.ZoomForLeg(r.wps[0].Coordinates, r.nextCoords(0), r.opts.InitialZoom)
	r.deps.View.PanZoomTo(p0, float64(r.zoom), r.opts.ZoomDuration)
	r.c.update(func(s *Status) {
		s.Zoom = r.zoom
		s.Bound = r.deps.Renderer.Bound()
	})

	thumbs := r.deps.Assembler.FrameAll(ctx, r.wps[0].Photos, r.opts.ThumbnailSize)
	if err := ctx.Err(); err != nil {
		return err
	}

	events := r.photoEvents(0, thumbs)
	if r.opts.PlayAudio && r.deps.Audio != nil {
		events = append(events, timing.Event{At: r.opts.AudioDelay, Fire: r.startAudio})
	}
	return timing.RunTimeline(ctx, r.deps.Clock, r.opts.PrimingDelay, events)
}

func (r *run) startAudio() {
	if err := r.deps.Audio.Play(); err != nil {
		slog.Warn("Playback: audio unavailable", "error", err)
		return
	}
	r.audioOn = true
	r.c.update(func(s *Status) { s.Audio = true })
}

// photoEvents staggers waypoint idx's thumbnails over the photo window.
func (r *run) photoEvents(idx int, thumbs []*media.Thumbnail) []timing.Event {
	at := r.path[idx]
	return timing.Stagger(len(thumbs), r.opts.PhotoWindow, func(i int) {
		r.deps.Renderer.PlacePhotoNear(at, thumbs[i], i, len(thumbs))
		r.photos++
		r.c.update(func(s *Status) {
			s.Photos = r.photos
			s.Bound = r.deps.Renderer.Bound()
		})
	})
}

// animate draws segment i, one frame at a time, ending exactly on its endpoint.
func (r *run) animate(ctx context.Context, i int) error {
	a, b := r.path[i], r.path[i+1]
	r.c.update(func(s *Status) { s.SegmentElapsed = 0 })
	r.c.transition(AnimatingSegment)

	d := r.opts.SegmentDuration
	segStart := r.deps.Clock.Now()
	for {
		now, err := r.deps.Clock.NextFrame(ctx)
		if err != nil {
			return err
		}
		elapsed := now.Sub(segStart)
		if elapsed >= d {
			break
		}

		pos := geo.Lerp(a, b, float64(elapsed)/float64(d))
		line := append(r.prefix.Clone(), pos)
		r.deps.Renderer.MoveMarker(r.traveler, pos)
		r.deps.Renderer.SetLine(line)
		r.deps.View.JumpTo(pos)

		r.c.frame(r.c.update(func(s *Status) {
			s.SegmentElapsed = elapsed
			s.Rendered = line
			s.Position = pos
		}))
	}

	r.deps.Renderer.MoveMarker(r.traveler, b)
	r.deps.Renderer.PlaceMarker(b, r.markerStyle(i+1))
	r.prefix = append(r.prefix, b)
	r.deps.Renderer.SetLine(r.prefix.Clone())
	r.deps.View.JumpTo(b)

	s := r.c.update(func(s *Status) {
		s.Segment = i + 1
		s.SegmentElapsed = d
		s.Rendered = r.prefix.Clone()
		s.Position = b
		s.Bound = r.deps.Renderer.Bound()
	})
	r.c.frame(s)
	slog.Debug("Playback: segment complete", "segment", i+1, "of", len(r.path)-1)
	return nil
}

// settle shows waypoint idx's photos, then re-zooms for the next leg.
func (r *run) settle(ctx context.Context, idx int, thumbs []*media.Thumbnail) error {
	r.c.transition(SegmentSettling)

	if err := timing.RunTimeline(ctx, r.deps.Clock, r.opts.PhotoWindow, r.photoEvents(idx, thumbs)); err != nil {
		return err
	}

	zoom := geo.ZoomForLeg(r.wps[idx].Coordinates, r.nextCoords(idx), r.zoom)
	if zoom == r.zoom {
		return nil
	}
	r.zoom = zoom
	r.c.update(func(s *Status) { s.Zoom = zoom })
	r.deps.View.ZoomTo(float64(zoom), r.opts.ZoomDuration)
	return timing.Delay(ctx, r.deps.Clock, r.opts.ZoomDuration)
}

func (r *run) finish(ctx context.Context) error {
	r.c.transition(Finishing)

	r.removeTraveler()
	r.deps.View.FitToBounds(r.deps.Renderer.Bound(), r.opts.FitPadding, r.opts.FitDuration)
	if err := timing.Delay(ctx, r.deps.Clock, r.opts.SettleDelay); err != nil {
		return err
	}

	r.stopAudio()
	captureErr := r.stopCapture()
	r.deps.View.ExitFullscreen()

	r.c.update(func(s *Status) {
		s.Complete = true
		s.CompletedAt = r.deps.Clock.Now()
	})
	r.done = true
	r.c.transition(Idle)
	slog.Info("Playback: finished", "segments", len(r.path)-1, "photos", r.photos, "took", r.deps.Clock.Now().Sub(r.start))
	return captureErr
}

func (r *run) removeTraveler() {
	if r.hasTraveler {
		r.deps.Renderer.RemoveMarker(r.traveler)
		r.hasTraveler = false
	}
}

func (r *run) stopAudio() {
	if !r.audioOn {
		return
	}
	r.audioOn = false
	if err := r.deps.Audio.Stop(); err != nil {
		slog.Warn("Playback: stopping audio failed", "error", err)
	}
	r.c.update(func(s *Status) { s.Audio = false })
}

func (r *run) stopCapture() error {
	if !r.captureOn {
		return nil
	}
	r.captureOn = false
	r.deps.Clock.Flush()
	err := r.deps.Capture.Stop()
	if err != nil {
		slog.Error("Playback: stopping capture failed", "error", err)
	}
	r.c.update(func(s *Status) { s.Recording = false })
	return err
}

// teardown undoes a playback that ended early.
func (r *run) teardown() {
	r.removeTraveler()
	r.stopAudio()
	if err := r.stopCapture(); err != nil {
		slog.Debug("Playback: capture teardown", "error", err)
	}
	r.deps.View.ExitFullscreen()
	r.c.transition(Idle)
}
