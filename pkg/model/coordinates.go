package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
)

// MalformedCoordinatesError is returned when a waypoint's coordinates cannot be used.
type MalformedCoordinatesError struct {
	WaypointID string
	Value      any
	Err        error
}

func (e *MalformedCoordinatesError) Error() string {
	return fmt.Sprintf("malformed coordinates for waypoint %q (%v): %v", e.WaypointID, e.Value, e.Err)
}

func (e *MalformedCoordinatesError) Unwrap() error {
	return e.Err
}

var (
	errNotPair      = errors.New("expected [lon, lat]")
	errNotFinite    = errors.New("coordinate is not finite")
	errLonRange     = errors.New("longitude outside [-180, 180]")
	errLatRange     = errors.New("latitude outside [-90, 90]")
	errMissingCoord = errors.New("coordinates missing")
)

// ParseCoordinates converts a decoded [lon, lat] value into a point. Accepted
// shapes are orb.Point, [2]float64, []float64, []any of numbers, or a string
// holding the JSON encoding of a pair.
func ParseCoordinates(raw any) (orb.Point, error) {
	switch v := raw.(type) {
	case nil:
		return orb.Point{}, errMissingCoord
	case orb.Point:
		return v, checkPoint(v)
	case [2]float64:
		return orb.Point(v), checkPoint(orb.Point(v))
	case []float64:
		if len(v) != 2 {
			return orb.Point{}, errNotPair
		}
		p := orb.Point{v[0], v[1]}
		return p, checkPoint(p)
	case []any:
		if len(v) != 2 {
			return orb.Point{}, errNotPair
		}
		var p orb.Point
		for i, n := range v {
			f, ok := toFloat(n)
			if !ok {
				return orb.Point{}, fmt.Errorf("%w: element %d is %T", errNotPair, i, n)
			}
			p[i] = f
		}
		return p, checkPoint(p)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return orb.Point{}, errMissingCoord
		}
		var pair []float64
		if err := json.Unmarshal([]byte(s), &pair); err != nil {
			return orb.Point{}, fmt.Errorf("%w: %v", errNotPair, err)
		}
		return ParseCoordinates(pair)
	default:
		return orb.Point{}, fmt.Errorf("%w: unsupported type %T", errNotPair, raw)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func checkPoint(p orb.Point) error {
	lon, lat := p[0], p[1]
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return errNotFinite
	}
	if lon < -180 || lon > 180 {
		return errLonRange
	}
	if lat < -90 || lat > 90 {
		return errLatRange
	}
	return nil
}

// ValidateWaypoints checks every waypoint and returns the first failure as a
// *MalformedCoordinatesError.
func ValidateWaypoints(wps []Waypoint) error {
	for i := range wps {
		if err := checkPoint(wps[i].Coordinates); err != nil {
			id := wps[i].ID
			if id == "" {
				id = fmt.Sprintf("#%d", i)
			}
			return &MalformedCoordinatesError{WaypointID: id, Value: wps[i].Coordinates, Err: err}
		}
	}
	return nil
}
