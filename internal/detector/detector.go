// Package detector implements transition detection: one location update in,
// the set of newly entered and exited geofences out, with the user's
// containment state committed atomically under that user's lock.
package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/geotrackd/fencewatch/internal/catalog"
	"github.com/geotrackd/fencewatch/internal/derrors"
	"github.com/geotrackd/fencewatch/internal/detector/metrics"
	"github.com/geotrackd/fencewatch/internal/domain"
	"github.com/geotrackd/fencewatch/internal/events"
	"github.com/geotrackd/fencewatch/internal/geo"
	"github.com/geotrackd/fencewatch/internal/notify"
	"github.com/geotrackd/fencewatch/internal/state"
)

// Detector is the core detection engine. Construct once and share; all
// methods are safe for concurrent use. Updates for the same user serialize
// on that user's lock in the state store, updates for different users run
// independently.
type Detector struct {
	catalog  catalog.Provider
	states   *state.Store
	sink     events.Sink
	notifier notify.Notifier
	log      *slog.Logger
	metrics  *metrics.Metrics
	newID    func() string
}

// Option configures a Detector.
type Option func(*Detector)

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Detector) { d.metrics = m }
}

// WithIDGenerator overrides event id generation for deterministic tests.
func WithIDGenerator(fn func() string) Option {
	return func(d *Detector) {
		if fn != nil {
			d.newID = fn
		}
	}
}

func New(cat catalog.Provider, states *state.Store, sink events.Sink, notifier notify.Notifier, log *slog.Logger, opts ...Option) *Detector {
	d := &Detector{
		catalog:  cat,
		states:   states,
		sink:     sink,
		notifier: notifier,
		log:      log,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// ProcessUpdate runs one detection pass for the update:
//
//  1. snapshot the catalog
//  2. evaluate containment at the update's position
//  3. diff against the user's prior containment set
//  4. commit the new set and last location
//  5. append each transition to the sink and publish it
//
// Steps 1-5 hold the user's lock, so per-user event order matches the order
// updates were applied. A catalog read failure aborts before any mutation
// and wraps derrors.ErrCatalogUnavailable: the caller may retry the same
// update. A sink failure never rolls back the committed state; the first
// such error is returned alongside the full event slice so the caller can
// log or retry persistence. Notification failures are logged and counted
// only.
func (d *Detector) ProcessUpdate(ctx context.Context, up domain.LocationUpdate) ([]domain.TransitionEvent, error) {
	start := time.Now()

	var transitions []domain.TransitionEvent
	var sinkErr error

	err := d.states.WithUser(up.UserID, func(st *domain.ContainmentState) error {
		fences, err := d.catalog.ListActive(ctx)
		if err != nil {
			return fmt.Errorf("catalog snapshot: %w", wrapCatalogErr(err))
		}
		d.metrics.ObserveCatalogSize(len(fences))

		var next map[int64]struct{}
		transitions, next = d.diff(st, fences, up)

		// Commit: the containment set becomes exactly the subset of this
		// snapshot containing the update's position. Fences that left the
		// catalog while the user was inside drop out silently here; no
		// exit is synthesized because there is no honest exit location.
		st.Inside = next
		st.LastLat = up.Latitude
		st.LastLon = up.Longitude
		st.LastUpdate = up.Timestamp
		st.HasLocation = true

		sinkErr = d.emit(ctx, transitions)
		return nil
	})
	if err != nil {
		d.metrics.ObserveUpdate("catalog_error", time.Since(start))
		return nil, err
	}

	d.metrics.ObserveUpdate("ok", time.Since(start))
	return transitions, sinkErr
}

// diff evaluates every fence in the snapshot against the prior set,
// returning the transitions plus the new containment set. Enter and exit
// ordering across distinct fences follows snapshot order; each event
// carries the update's timestamp and position.
func (d *Detector) diff(st *domain.ContainmentState, fences []domain.Geofence, up domain.LocationUpdate) ([]domain.TransitionEvent, map[int64]struct{}) {
	point := geo.Point{Lat: up.Latitude, Lon: up.Longitude}

	next := make(map[int64]struct{})
	var out []domain.TransitionEvent
	for _, f := range fences {
		inside := geo.Contains(f, point)
		was := st.Contains(f.ID)

		if inside {
			next[f.ID] = struct{}{}
		}
		switch {
		case inside && !was:
			out = append(out, d.newEvent(up, f.ID, domain.TransitionEnter))
		case !inside && was:
			out = append(out, d.newEvent(up, f.ID, domain.TransitionExit))
		}
	}
	return out, next
}

func (d *Detector) newEvent(up domain.LocationUpdate, geofenceID int64, kind domain.TransitionType) domain.TransitionEvent {
	return domain.TransitionEvent{
		ID:         d.newID(),
		UserID:     up.UserID,
		GeofenceID: geofenceID,
		Type:       kind,
		Timestamp:  up.Timestamp,
		Latitude:   up.Latitude,
		Longitude:  up.Longitude,
	}
}

// emit appends and publishes every transition. A failure on one event is an
// isolated fault domain: the remaining events still persist and publish.
func (d *Detector) emit(ctx context.Context, transitions []domain.TransitionEvent) error {
	var firstErr error
	for _, ev := range transitions {
		d.metrics.ObserveTransition(string(ev.Type))

		if err := d.sink.Append(ctx, ev); err != nil {
			d.metrics.ObserveSinkFailure()
			d.log.Error("event append failed",
				"event_id", ev.ID, "user_id", ev.UserID, "geofence_id", ev.GeofenceID, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("append event %s: %w", ev.ID, err)
			}
		}

		d.publish(ctx, notify.TopicBroadcast, ev)
		d.publish(ctx, notify.UserTopic(ev.UserID), ev)
	}
	return firstErr
}

func (d *Detector) publish(ctx context.Context, topic string, ev domain.TransitionEvent) {
	if err := d.notifier.Publish(ctx, topic, ev); err != nil {
		d.metrics.ObserveNotifyFailure()
		d.log.Warn("event publish failed", "topic", topic, "event_id", ev.ID, "error", err)
	}
}

func wrapCatalogErr(err error) error {
	if errors.Is(err, derrors.ErrCatalogUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", derrors.ErrCatalogUnavailable, err)
}
