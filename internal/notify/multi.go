package notify

import (
	"context"
	"errors"

	"github.com/geotrackd/fencewatch/internal/domain"
)

// Multi fans one publish out to several notifiers. Every notifier is
// attempted regardless of earlier failures; errors are aggregated so the
// caller can log them in one place.
type Multi struct {
	notifiers []Notifier
}

var _ Notifier = (*Multi)(nil)

func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

func (m *Multi) Publish(ctx context.Context, topic string, ev domain.TransitionEvent) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Publish(ctx, topic, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
