package itinerary

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"tripreel/pkg/model"
)

// RouteGeoJSON returns the itinerary as a feature collection: the path as
// a LineString followed by one Point per waypoint.
func RouteGeoJSON(wps []model.Waypoint) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if len(wps) == 0 {
		return fc
	}

	line := make(orb.LineString, len(wps))
	for i, wp := range wps {
		line[i] = wp.Coordinates
	}
	route := geojson.NewFeature(line)
	route.Properties["kind"] = "route"
	route.Properties["waypoints"] = len(wps)
	fc.Append(route)

	for i, wp := range wps {
		f := geojson.NewFeature(wp.Coordinates)
		f.ID = wp.ID
		f.Properties["kind"] = "waypoint"
		f.Properties["index"] = i
		f.Properties["id"] = wp.ID
		f.Properties["address"] = wp.Address
		f.Properties["photos"] = len(wp.Photos)
		if wp.Arrival != nil {
			f.Properties["arrival"] = wp.Arrival.Format(time.RFC3339)
		}
		if wp.Departure != nil {
			f.Properties["departure"] = wp.Departure.Format(time.RFC3339)
		}
		fc.Append(f)
	}
	return fc
}
