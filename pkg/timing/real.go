package timing

import (
	"context"
	"sync"
	"time"
)

// Real is a wall-clock implementation of Clock.
type Real struct {
	hooks

	interval time.Duration

	mu        sync.Mutex
	lastFrame time.Time
	pending   *time.Time
}

// NewReal creates a wall clock presenting frames at fps.
func NewReal(fps float64) *Real {
	return &Real{interval: IntervalFor(fps)}
}

// Now returns the current wall time.
func (r *Real) Now() time.Time {
	return time.Now()
}

// FrameInterval returns the frame interval.
func (r *Real) FrameInterval() time.Duration {
	return r.interval
}

// OnFrame registers a frame hook.
func (r *Real) OnFrame(fn FrameFunc) func() {
	return r.add(fn)
}

// Flush presents the pending frame, if any.
func (r *Real) Flush() {
	r.mu.Lock()
	p := r.pending
	r.pending = nil
	r.mu.Unlock()

	if p != nil {
		r.fire(*p)
	}
}

// Sleep waits for d, presenting a frame on every tick.
func (r *Real) Sleep(ctx context.Context, d time.Duration) error {
	r.Flush()

	timer := time.NewTimer(d)
	defer timer.Stop()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case now := <-ticker.C:
			r.mu.Lock()
			r.lastFrame = now
			r.mu.Unlock()
			r.fire(now)
		}
	}
}

// NextFrame waits until one interval after the previous frame.
func (r *Real) NextFrame(ctx context.Context) (time.Time, error) {
	r.Flush()

	r.mu.Lock()
	wait := r.interval - time.Since(r.lastFrame)
	r.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	now := time.Now()
	r.mu.Lock()
	r.lastFrame = now
	r.pending = &now
	r.mu.Unlock()
	return now, nil
}
