// Package notify publishes transition events to live subscribers. Delivery
// is best-effort: the detector logs failures and never lets them invalidate
// a detection result.
package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/geotrackd/fencewatch/internal/domain"
)

// TopicBroadcast receives every transition event.
const TopicBroadcast = "geofence.events"

// UserTopic returns the per-user topic for targeted subscriptions.
func UserTopic(userID int64) string {
	return "geofence.user." + strconv.FormatInt(userID, 10)
}

// Notifier delivers one event to one topic. Implementations must be safe
// for concurrent callers.
type Notifier interface {
	Publish(ctx context.Context, topic string, ev domain.TransitionEvent) error
}

// eventPayload is the canonical wire schema shared by every transport.
type eventPayload struct {
	UserID     int64           `json:"userId"`
	GeofenceID int64           `json:"geofenceId"`
	EventType  string          `json:"eventType"`
	Timestamp  time.Time       `json:"timestamp"`
	Location   payloadLocation `json:"location"`
}

type payloadLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// MarshalEvent encodes the canonical JSON payload for a transition event.
func MarshalEvent(ev domain.TransitionEvent) ([]byte, error) {
	return json.Marshal(eventPayload{
		UserID:     ev.UserID,
		GeofenceID: ev.GeofenceID,
		EventType:  string(ev.Type),
		Timestamp:  ev.Timestamp,
		Location: payloadLocation{
			Latitude:  ev.Latitude,
			Longitude: ev.Longitude,
		},
	})
}

// Noop satisfies Notifier without a transport.
type Noop struct{}

func (Noop) Publish(context.Context, string, domain.TransitionEvent) error { return nil }
