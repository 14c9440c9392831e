// Package geo provides great-circle math on a spherical Earth model.
package geo

import (
	"math"

	"github.com/geotrackd/fencewatch/internal/domain"
)

// earthRadiusM is the mean Earth radius used by the haversine formula.
const earthRadiusM = 6371000

// Point is a WGS84 coordinate pair in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Distance returns the haversine distance between two points in meters.
// Symmetric, non-negative, and zero (up to floating point) for identical
// points. Behavior on out-of-range coordinates is unspecified; validation
// happens upstream.
func Distance(a, b Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Contains reports whether p falls within the geofence. The boundary is
// inclusive: a point exactly RadiusM meters from the center is inside.
func Contains(g domain.Geofence, p Point) bool {
	return Distance(p, Point{Lat: g.Latitude, Lon: g.Longitude}) <= g.RadiusM
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
