package notify

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/geotrackd/fencewatch/internal/domain"
)

const exchangeName = "geofence.events"

// AMQPNotifier publishes events to a durable topic exchange. The notify
// topic becomes the routing key, so consumers bind geofence.events for the
// broadcast stream or geofence.user.* for per-user queues.
type AMQPNotifier struct {
	ch *amqp.Channel
}

var _ Notifier = (*AMQPNotifier)(nil)

func NewAMQPNotifier(conn *amqp.Connection) (*AMQPNotifier, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPNotifier{ch: ch}, nil
}

func (n *AMQPNotifier) Publish(ctx context.Context, topic string, ev domain.TransitionEvent) error {
	body, err := MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return n.ch.PublishWithContext(ctx, exchangeName, topic, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Close releases the channel.
func (n *AMQPNotifier) Close() error {
	return n.ch.Close()
}
