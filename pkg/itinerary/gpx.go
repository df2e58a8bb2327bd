package itinerary

import (
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/tkrajina/gpxgo/gpx"

	"tripreel/pkg/model"
)

// ErrEmptyGPX is returned when a GPX file has no usable points.
var ErrEmptyGPX = errors.New("gpx file has no waypoints, routes or tracks")

// FromGPX converts a GPX document into waypoints. Waypoint elements are
// used when present; otherwise route points, then the endpoints of each
// track segment.
func FromGPX(data []byte) ([]model.Waypoint, error) {
	doc, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GPX file: %w", err)
	}

	var points []gpx.GPXPoint
	switch {
	case len(doc.Waypoints) > 0:
		points = doc.Waypoints
	case len(doc.Routes) > 0:
		for _, r := range doc.Routes {
			points = append(points, r.Points...)
		}
	default:
		for _, trk := range doc.Tracks {
			for _, seg := range trk.Segments {
				if len(seg.Points) == 0 {
					continue
				}
				points = append(points, seg.Points[0])
				if len(seg.Points) > 1 {
					points = append(points, seg.Points[len(seg.Points)-1])
				}
			}
		}
	}
	if len(points) == 0 {
		return nil, ErrEmptyGPX
	}

	wps := make([]model.Waypoint, 0, len(points))
	for i := range points {
		wps = append(wps, fromGPXPoint(&points[i]))
	}
	return wps, nil
}

func fromGPXPoint(p *gpx.GPXPoint) model.Waypoint {
	wp := model.Waypoint{
		Address:     p.Name,
		Coordinates: orb.Point{p.Longitude, p.Latitude},
	}
	if wp.Address == "" {
		wp.Address = p.Description
	}
	if !p.Timestamp.IsZero() {
		ts := p.Timestamp.UTC().Truncate(time.Second)
		wp.Arrival = &ts
	}
	for _, l := range p.Links {
		if l.Href != "" {
			wp.Photos = append(wp.Photos, l.Href)
		}
	}
	return wp
}
