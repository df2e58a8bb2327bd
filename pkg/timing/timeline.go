package timing

import (
	"context"
	"sort"
	"time"
)

// Event fires at offset At from the start of a timeline.
type Event struct {
	At   time.Duration
	Fire func()
}

// RunTimeline fires events in offset order, then waits out the rest of the
// window. Events past the window still fire; the window then ends with them.
func RunTimeline(ctx context.Context, clock Clock, window time.Duration, events []Event) error {
	ordered := make([]Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].At < ordered[j].At })

	var elapsed time.Duration
	for _, ev := range ordered {
		if wait := ev.At - elapsed; wait > 0 {
			if err := Delay(ctx, clock, wait); err != nil {
				return err
			}
			elapsed = ev.At
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if ev.Fire != nil {
			ev.Fire()
		}
	}
	return Delay(ctx, clock, window-elapsed)
}

// Stagger spreads n events evenly over window: event i fires at i*window/n.
func Stagger(n int, window time.Duration, fire func(i int)) []Event {
	if n <= 0 {
		return nil
	}
	events := make([]Event, n)
	for i := 0; i < n; i++ {
		idx := i
		events[i] = Event{
			At:   time.Duration(int64(window) * int64(i) / int64(n)),
			Fire: func() { fire(idx) },
		}
	}
	return events
}
