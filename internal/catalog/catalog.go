// Package catalog supplies the set of active geofences the detector diffs
// against. Providers are interface-driven so in-memory, PostgreSQL, and
// cached implementations swap without rewiring the detector.
package catalog

import (
	"context"

	"github.com/geotrackd/fencewatch/internal/domain"
	"github.com/geotrackd/fencewatch/internal/geo"
)

// Provider yields catalog snapshots. ListActive is the baseline full-scan
// read; a read failure is retryable and must leave the caller free to retry
// the same update.
type Provider interface {
	ListActive(ctx context.Context) ([]domain.Geofence, error)

	// ListNear is the spatial-index extension hook: it may return any
	// superset of the fences whose region intersects the circle of
	// maxRadiusM around p. Baseline implementations filter a full scan.
	ListNear(ctx context.Context, p geo.Point, maxRadiusM float64) ([]domain.Geofence, error)
}

// filterNear keeps fences whose circle intersects the query circle. Shared
// by providers without a real spatial index.
func filterNear(fences []domain.Geofence, p geo.Point, maxRadiusM float64) []domain.Geofence {
	out := make([]domain.Geofence, 0, len(fences))
	for _, f := range fences {
		center := geo.Point{Lat: f.Latitude, Lon: f.Longitude}
		if geo.Distance(p, center) <= maxRadiusM+f.RadiusM {
			out = append(out, f)
		}
	}
	return out
}
