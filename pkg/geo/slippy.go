package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// mercatorRadius is the sphere radius of EPSG:3857.
const mercatorRadius = 6378137.0

// OriginShift is half the width of the mercator world in meters.
const OriginShift = math.Pi * mercatorRadius

// Resolution returns meters per pixel at zoom for square tiles of tileSize pixels.
func Resolution(zoom float64, tileSize int) float64 {
	return 2 * OriginShift / (float64(tileSize) * math.Exp2(zoom))
}

// ZoomForResolution is the inverse of Resolution.
func ZoomForResolution(res float64, tileSize int) float64 {
	return math.Log2(2 * OriginShift / (float64(tileSize) * res))
}

// WorldPixel converts projected meters into global pixel coordinates at zoom,
// origin at the top-left (north-west) corner of the world.
func WorldPixel(projected orb.Point, zoom float64, tileSize int) (x, y float64) {
	res := Resolution(zoom, tileSize)
	return (projected[0] + OriginShift) / res, (OriginShift - projected[1]) / res
}

// FromWorldPixel is the inverse of WorldPixel.
func FromWorldPixel(x, y, zoom float64, tileSize int) orb.Point {
	res := Resolution(zoom, tileSize)
	return orb.Point{x*res - OriginShift, OriginShift - y*res}
}

// TileIndex returns the slippy-map tile containing a lon/lat point at integer zoom.
func TileIndex(p orb.Point, zoom int) (x, y int) {
	n := math.Exp2(float64(zoom))
	lat := math.Max(-MaxMercatorLat, math.Min(MaxMercatorLat, p.Lat()))
	latRad := lat * math.Pi / 180
	x = int(math.Floor((p.Lon() + 180.0) / 360.0 * n))
	y = int(math.Floor((1.0 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2.0 * n))
	maxIdx := int(n) - 1
	return clampInt(x, 0, maxIdx), clampInt(y, 0, maxIdx)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
