package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/geotrackd/fencewatch/internal/domain"
)

// RedisNotifier publishes events over Redis pub/sub channels. Channel names
// are the notify topics, so subscribers PSUBSCRIBE geofence.user.* for
// targeted streams or SUBSCRIBE geofence.events for the firehose.
type RedisNotifier struct {
	client redis.Cmdable
}

var _ Notifier = (*RedisNotifier)(nil)

func NewRedisNotifier(client redis.Cmdable) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) Publish(ctx context.Context, topic string, ev domain.TransitionEvent) error {
	body, err := MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.client.Publish(ctx, topic, body).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}
