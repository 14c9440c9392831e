package domain

// Geofence is a circular region owned by a user. The detector treats it as
// immutable; the catalog service owns mutation.
type Geofence struct {
	ID        int64
	OwnerID   int64
	Name      string
	Latitude  float64
	Longitude float64
	RadiusM   float64
}
