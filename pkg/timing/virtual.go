package timing

import (
	"context"
	"sync"
	"time"
)

// Virtual is a deterministic clock that advances instantly. Frame
// boundaries sit at start + k*interval.
type Virtual struct {
	hooks

	mu       sync.Mutex
	start    time.Time
	now      time.Time
	interval time.Duration
	pending  *time.Time
	frames   int64
}

// NewVirtual creates a virtual clock starting at start and ticking at fps.
func NewVirtual(start time.Time, fps float64) *Virtual {
	return &Virtual{
		start:    start,
		now:      start,
		interval: IntervalFor(fps),
	}
}

// Now returns the virtual time.
func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// FrameInterval returns the frame interval.
func (v *Virtual) FrameInterval() time.Duration {
	return v.interval
}

// Frames returns the number of frames presented so far.
func (v *Virtual) Frames() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frames
}

// OnFrame registers a frame hook.
func (v *Virtual) OnFrame(fn FrameFunc) func() {
	return v.add(fn)
}

// Flush presents the pending frame, if any.
func (v *Virtual) Flush() {
	v.mu.Lock()
	p := v.pending
	v.pending = nil
	if p != nil {
		v.frames++
	}
	v.mu.Unlock()

	if p != nil {
		v.fire(*p)
	}
}

// nextBoundary returns the first frame boundary strictly after t.
func (v *Virtual) nextBoundary(t time.Time) time.Time {
	k := t.Sub(v.start)/v.interval + 1
	return v.start.Add(k * v.interval)
}

// Sleep advances the clock by d, presenting each frame boundary in (now, now+d].
func (v *Virtual) Sleep(ctx context.Context, d time.Duration) error {
	v.Flush()

	v.mu.Lock()
	end := v.now.Add(d)
	v.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		v.mu.Lock()
		next := v.nextBoundary(v.now)
		if next.After(end) {
			v.now = end
			v.mu.Unlock()
			return nil
		}
		v.now = next
		v.frames++
		v.mu.Unlock()

		v.fire(next)
	}
}

// NextFrame advances to the next frame boundary. The frame is presented on
// the next clock call or Flush.
func (v *Virtual) NextFrame(ctx context.Context) (time.Time, error) {
	v.Flush()
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	next := v.nextBoundary(v.now)
	v.now = next
	v.pending = &next
	return next, nil
}
