package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/geotrackd/fencewatch/internal/domain"
)

func TestMarshalEventPayloadShape(t *testing.T) {
	ev := domain.TransitionEvent{
		ID:         "ev-1",
		UserID:     1,
		GeofenceID: 10,
		Type:       domain.TransitionEnter,
		Timestamp:  time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Latitude:   40.7128,
		Longitude:  -74.0060,
	}

	body, err := MarshalEvent(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))

	require.Equal(t, float64(1), decoded["userId"])
	require.Equal(t, float64(10), decoded["geofenceId"])
	require.Equal(t, "enter", decoded["eventType"])
	require.Equal(t, "2024-01-01T12:00:00Z", decoded["timestamp"])

	loc, ok := decoded["location"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, 40.7128, loc["latitude"])
	require.Equal(t, -74.0060, loc["longitude"])

	// The sink-local event id stays off the wire.
	require.NotContains(t, decoded, "id")
}

func TestUserTopic(t *testing.T) {
	require.Equal(t, "geofence.user.42", UserTopic(42))
}

// recordingNotifier captures publishes; fails when broken.
type recordingNotifier struct {
	mu     sync.Mutex
	topics []string
	broken bool
}

func (n *recordingNotifier) Publish(_ context.Context, topic string, _ domain.TransitionEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.broken {
		return errors.New("transport down")
	}
	n.topics = append(n.topics, topic)
	return nil
}

func TestMultiFanOutBestEffort(t *testing.T) {
	healthy := &recordingNotifier{}
	dead := &recordingNotifier{broken: true}
	alsoHealthy := &recordingNotifier{}

	m := NewMulti(healthy, dead, alsoHealthy)
	err := m.Publish(context.Background(), TopicBroadcast, domain.TransitionEvent{UserID: 1})

	require.Error(t, err, "failures are surfaced for logging")
	require.Equal(t, []string{TopicBroadcast}, healthy.topics, "failure of one notifier must not skip the others")
	require.Equal(t, []string{TopicBroadcast}, alsoHealthy.topics)
}
