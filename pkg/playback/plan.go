package playback

import (
	"time"

	"github.com/paulmach/orb"

	"tripreel/pkg/geo"
	"tripreel/pkg/model"
)

// ZoomPlan returns, for each waypoint, the zoom the camera holds while
// leaving it. Segment i animates at zooms[i].
func ZoomPlan(wps []model.Waypoint, initial int) []int {
	if len(wps) == 0 {
		return nil
	}
	zooms := make([]int, len(wps))
	z := initial
	for i := range wps {
		var next *orb.Point
		if i+1 < len(wps) {
			p := wps[i+1].Coordinates
			next = &p
		}
		z = geo.ZoomForLeg(wps[i].Coordinates, next, z)
		zooms[i] = z
	}
	return zooms
}

// Estimate returns how long a playback of wps takes on a virtual clock.
func Estimate(wps []model.Waypoint, opts Options) time.Duration {
	if len(wps) == 0 {
		return 0
	}
	opts = withDefaults(opts)
	zooms := ZoomPlan(wps, opts.InitialZoom)

	total := opts.PrimingDelay + opts.SettleDelay
	for i := 0; i+1 < len(wps); i++ {
		total += opts.SegmentDuration + opts.PhotoWindow
		if zooms[i+1] != zooms[i] {
			total += opts.ZoomDuration
		}
	}
	return total
}
