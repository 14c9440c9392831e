package domain

import "time"

// LocationUpdate is one position report from the ingestion boundary.
// Coordinates are validated to standard ranges before the update reaches
// the detector.
type LocationUpdate struct {
	UserID    int64
	Latitude  float64
	Longitude float64
	Timestamp time.Time
}
