package geo

import (
	"log/slog"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// EarthRadius is the mean Earth radius in meters used for great-circle distances.
const EarthRadius = 6371008.8

// MaxMercatorLat is the latitude at which the square web-mercator world ends.
const MaxMercatorLat = 85.05112878

// ToProjected converts a WGS84 lon/lat point into web-mercator meters (EPSG:3857).
// Latitudes beyond the mercator limit are clamped.
func ToProjected(p orb.Point) orb.Point {
	lat := math.Max(-MaxMercatorLat, math.Min(MaxMercatorLat, p.Lat()))
	return project.WGS84.ToMercator(orb.Point{p.Lon(), lat})
}

// ToGeographic converts web-mercator meters back to WGS84 lon/lat.
func ToGeographic(p orb.Point) orb.Point {
	return project.Mercator.ToWGS84(p)
}

// Distance calculates the Haversine distance between two lon/lat points in meters.
func Distance(p1, p2 orb.Point) float64 {
	dLat := (p2.Lat() - p1.Lat()) * (math.Pi / 180.0)
	dLon := (p2.Lon() - p1.Lon()) * (math.Pi / 180.0)
	lat1 := p1.Lat() * (math.Pi / 180.0)
	lat2 := p2.Lat() * (math.Pi / 180.0)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// Bearing calculates the initial bearing (forward azimuth) from p1 to p2 in degrees.
func Bearing(p1, p2 orb.Point) float64 {
	lat1 := p1.Lat() * (math.Pi / 180.0)
	lat2 := p2.Lat() * (math.Pi / 180.0)
	dLon := (p2.Lon() - p1.Lon()) * (math.Pi / 180.0)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) -
		math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	brng := math.Atan2(y, x)

	return math.Mod(brng*(180.0/math.Pi)+360.0, 360.0)
}

// ZoomStep maps legs shorter than MaxDistance meters to Zoom.
type ZoomStep struct {
	MaxDistance float64
	Zoom        int
}

// ZoomTable is ordered by ascending distance. The first step whose
// MaxDistance strictly exceeds the leg length wins.
var ZoomTable = []ZoomStep{
	{50_000, 12},
	{200_000, 10},
	{500_000, 9},
	{1_000_000, 8},
	{1_500_000, 7},
	{2_000_000, 6},
	{3_000_000, 5},
	{8_000_000, 4},
}

// FarZoom is used for legs longer than every table entry.
const FarZoom = 4

// ZoomForDistance picks the zoom for a leg of d meters. Non-finite or
// negative distances are logged and keep the current zoom.
func ZoomForDistance(d float64, current int) int {
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		slog.Warn("GeoMath: unusable leg distance, keeping zoom", "distance", d, "zoom", current)
		return current
	}
	for _, step := range ZoomTable {
		if d < step.MaxDistance {
			return step.Zoom
		}
	}
	return FarZoom
}

// ZoomForLeg picks the zoom for the leg from -> to (lon/lat). A nil
// destination means there is no next leg and keeps the current zoom.
func ZoomForLeg(from orb.Point, to *orb.Point, current int) int {
	if to == nil {
		return current
	}
	return ZoomForDistance(Distance(from, *to), current)
}

// Lerp interpolates linearly between a and b, t in [0, 1].
func Lerp(a, b orb.Point, t float64) orb.Point {
	return orb.Point{
		a[0] + (b[0]-a[0])*t,
		a[1] + (b[1]-a[1])*t,
	}
}

// EmptyBound returns a bound that contains nothing; extending it with a
// point yields that point's bound.
func EmptyBound() orb.Bound {
	inf := math.Inf(1)
	return orb.Bound{Min: orb.Point{inf, inf}, Max: orb.Point{-inf, -inf}}
}

// IsEmpty reports whether b was never extended.
func IsEmpty(b orb.Bound) bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1]
}

// Extend grows b to include p. Unlike orb.Bound.Extend it treats
// EmptyBound as containing nothing.
func Extend(b orb.Bound, p orb.Point) orb.Bound {
	if IsEmpty(b) {
		return orb.Bound{Min: p, Max: p}
	}
	return b.Extend(p)
}

// Union grows a to include b, ignoring empty inputs.
func Union(a, b orb.Bound) orb.Bound {
	switch {
	case IsEmpty(a):
		return b
	case IsEmpty(b):
		return a
	}
	return a.Union(b)
}

// ContainsBound reports whether inner lies entirely within outer.
func ContainsBound(outer, inner orb.Bound) bool {
	if IsEmpty(inner) {
		return true
	}
	if IsEmpty(outer) {
		return false
	}
	return outer.Min[0] <= inner.Min[0] && outer.Min[1] <= inner.Min[1] &&
		outer.Max[0] >= inner.Max[0] && outer.Max[1] >= inner.Max[1]
}
