// Package events persists transition events and location history. The
// detector only needs the append-only Sink; query surfaces are separate so
// sinks without read paths (queues, log shippers) stay small.
package events

import (
	"context"

	"github.com/geotrackd/fencewatch/internal/domain"
)

// Sink is the append-only destination for transition events. Append must be
// safe for concurrent callers. A failed append is an isolated fault: the
// detector's state commit stands regardless.
type Sink interface {
	Append(ctx context.Context, ev domain.TransitionEvent) error
}

// Store adds the query surface over a Sink. Reads return newest first.
type Store interface {
	Sink
	ListByUser(ctx context.Context, userID int64, limit int) ([]domain.TransitionEvent, error)
	ListByGeofence(ctx context.Context, geofenceID int64, limit int) ([]domain.TransitionEvent, error)
}

// LocationStore records raw location updates independent of transitions,
// mirroring the event trail the ingest path owns. Reads return newest first.
type LocationStore interface {
	Record(ctx context.Context, up domain.LocationUpdate) error
	Latest(ctx context.Context, userID int64) (domain.LocationUpdate, error)
	History(ctx context.Context, userID int64, limit int) ([]domain.LocationUpdate, error)
}
