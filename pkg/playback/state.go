package playback

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

// State is the phase of a playback.
type State int

const (
	Idle State = iota
	Priming
	AnimatingSegment
	SegmentSettling
	Finishing
)

var stateNames = [...]string{"idle", "priming", "animating", "settling", "finishing"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a snapshot of a controller's playback state.
type Status struct {
	State          State         `json:"state"`
	Segment        int           `json:"segment"`
	Segments       int           `json:"segments"`
	SegmentElapsed time.Duration `json:"segment_elapsed"`
	// Rendered is the drawn line: every reached point plus the
	// interpolated position while a segment is partial.
	Rendered    []orb.Point `json:"rendered"`
	Position    orb.Point   `json:"position"`
	Zoom        int         `json:"zoom"`
	Bound       orb.Bound   `json:"bound"`
	Recording   bool        `json:"recording"`
	Audio       bool        `json:"audio"`
	Complete    bool        `json:"complete"`
	Waypoints   int         `json:"waypoints"`
	Photos      int         `json:"photos"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at"`
}

func (s Status) clone() Status {
	s.Rendered = append([]orb.Point(nil), s.Rendered...)
	return s
}
