// Package timing provides the clocks playback runs on.
//
// A Clock both measures time and drives frame hooks: every frame boundary
// crossed while the caller sleeps, and every frame handed out by NextFrame,
// is announced to the registered hooks on the caller's goroutine. A frame
// returned by NextFrame is announced lazily (on the next clock call or
// Flush) so hooks observe the state the caller produced for that frame.
package timing

import (
	"context"
	"sort"
	"sync"
	"time"
)

// FrameFunc is called once per presented frame.
type FrameFunc func(now time.Time)

// Clock is the time source for playback.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d, presenting every frame boundary crossed.
	Sleep(ctx context.Context, d time.Duration) error
	// NextFrame blocks until the next frame boundary and returns its time.
	NextFrame(ctx context.Context) (time.Time, error)
	// Flush presents a frame returned by NextFrame that is still pending.
	Flush()
	// OnFrame registers a hook; the returned func removes it.
	OnFrame(fn FrameFunc) (remove func())
	FrameInterval() time.Duration
}

// Delay waits for d on clock. It returns ctx.Err() if the context is done
// before or during the wait, so callers can tell whether to continue.
func Delay(ctx context.Context, clock Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	return clock.Sleep(ctx, d)
}

// IntervalFor converts a frame rate into a frame interval; non-positive
// rates fall back to 25 fps.
func IntervalFor(fps float64) time.Duration {
	if fps <= 0 {
		fps = 25
	}
	return time.Duration(float64(time.Second) / fps)
}

// hooks is the ordered hook registry shared by both clocks.
type hooks struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]FrameFunc
}

func (h *hooks) add(fn FrameFunc) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fns == nil {
		h.fns = make(map[int]FrameFunc)
	}
	id := h.nextID
	h.nextID++
	h.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.fns, id)
		})
	}
}

// fire calls the hooks in registration order without holding the lock, so
// hooks may register or remove hooks themselves.
func (h *hooks) fire(now time.Time) {
	h.mu.Lock()
	ids := make([]int, 0, len(h.fns))
	for id := range h.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]FrameFunc, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, h.fns[id])
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(now)
	}
}
