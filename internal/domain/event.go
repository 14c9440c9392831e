package domain

import "time"

// TransitionType distinguishes the two containment transitions.
type TransitionType string

const (
	TransitionEnter TransitionType = "enter"
	TransitionExit  TransitionType = "exit"
)

// TransitionEvent records one containment change for a (user, geofence)
// pair. Immutable once created; the event sink owns it after emission.
// Timestamp is the update's processing timestamp, not the catalog's
// wall-clock, and Latitude/Longitude are the position at detection time.
type TransitionEvent struct {
	ID         string
	UserID     int64
	GeofenceID int64
	Type       TransitionType
	Timestamp  time.Time
	Latitude   float64
	Longitude  float64
}
