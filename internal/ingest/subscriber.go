package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/geotrackd/fencewatch/internal/derrors"
	"github.com/geotrackd/fencewatch/internal/domain"
	"github.com/geotrackd/fencewatch/internal/events"
)

// locationMessage is the wire format published by trackers.
type locationMessage struct {
	UserID    int64   `json:"userId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}

// Subscriber bridges the MQTT location stream into the dispatcher. Each
// accepted update is recorded to the location trail before detection so the
// history survives even when the detector sheds or fails.
type Subscriber struct {
	client     mqtt.Client
	topic      string
	locations  events.LocationStore
	dispatcher *Dispatcher
	log        *slog.Logger
}

func NewSubscriber(client mqtt.Client, topic string, locations events.LocationStore, dispatcher *Dispatcher, log *slog.Logger) *Subscriber {
	return &Subscriber{
		client:     client,
		topic:      topic,
		locations:  locations,
		dispatcher: dispatcher,
		log:        log,
	}
}

// Start subscribes at QoS 1 and returns once the subscription is live.
func (s *Subscriber) Start() error {
	token := s.client.Subscribe(s.topic, 1, s.handleMessage)
	token.Wait()
	return token.Error()
}

// Stop unsubscribes from the location topic.
func (s *Subscriber) Stop() error {
	token := s.client.Unsubscribe(s.topic)
	token.Wait()
	return token.Error()
}

func (s *Subscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var raw locationMessage
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		s.log.Warn("invalid location payload", "topic", msg.Topic(), "error", err)
		return
	}

	up := domain.LocationUpdate{
		UserID:    raw.UserID,
		Latitude:  raw.Latitude,
		Longitude: raw.Longitude,
		Timestamp: time.Unix(raw.Timestamp, 0),
	}
	if raw.Timestamp <= 0 {
		up.Timestamp = time.Time{}
	}

	if err := ValidateUpdate(up); err != nil {
		s.log.Warn("rejected location update", "topic", msg.Topic(), "error", err)
		return
	}

	if err := s.locations.Record(context.Background(), up); err != nil {
		s.log.Error("record location failed", "user_id", up.UserID, "error", err)
		// Detection still proceeds; the trail is an audit artifact.
	}

	if err := s.dispatcher.Enqueue(up); err != nil {
		if errors.Is(err, derrors.ErrQueueFull) {
			s.log.Warn("shed location update", "user_id", up.UserID)
			return
		}
		s.log.Error("enqueue failed", "user_id", up.UserID, "error", err)
	}
}
