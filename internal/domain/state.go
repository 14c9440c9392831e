package domain

import "time"

// ContainmentState is the per-user record of which geofences currently
// contain the user, plus the last processed location. Created lazily on a
// user's first update and mutated only by the transition detector while it
// holds that user's lock.
type ContainmentState struct {
	UserID int64
	// Inside holds geofence ids with set semantics; no id appears twice.
	Inside      map[int64]struct{}
	LastLat     float64
	LastLon     float64
	LastUpdate  time.Time
	HasLocation bool
}

// Clone returns a deep copy so readers never alias the live record.
func (s ContainmentState) Clone() ContainmentState {
	out := s
	out.Inside = make(map[int64]struct{}, len(s.Inside))
	for id := range s.Inside {
		out.Inside[id] = struct{}{}
	}
	return out
}

// Contains reports whether the user is currently inside the geofence.
func (s ContainmentState) Contains(geofenceID int64) bool {
	_, ok := s.Inside[geofenceID]
	return ok
}
