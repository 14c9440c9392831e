// Package ingest is the location-update boundary: it decodes and validates
// raw position reports and hands them to the detector through per-user FIFO
// mailboxes, so a chatty user queues behind their own backlog instead of
// reordering or blocking anyone else.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/geotrackd/fencewatch/internal/derrors"
	"github.com/geotrackd/fencewatch/internal/domain"
)

var (
	droppedUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fencewatch_ingest_dropped_updates_total",
		Help: "Location updates shed because a per-user queue was full.",
	})
	activeMailboxes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fencewatch_ingest_active_mailboxes",
		Help: "Per-user mailboxes with a live worker goroutine.",
	})
)

// idleTimeout is how long a user's worker lingers with an empty mailbox
// before exiting.
const idleTimeout = 30 * time.Second

// Processor consumes one validated update. The detector satisfies this.
type Processor interface {
	ProcessUpdate(ctx context.Context, up domain.LocationUpdate) ([]domain.TransitionEvent, error)
}

type mailbox struct {
	ch chan domain.LocationUpdate
}

// Dispatcher serializes updates per user: one bounded FIFO channel and one
// worker goroutine per active user. Updates for distinct users are
// processed concurrently. Overflow is shed with derrors.ErrQueueFull, never
// reordered.
type Dispatcher struct {
	process Processor
	log     *slog.Logger
	depth   int

	mu        sync.Mutex
	mailboxes map[int64]*mailbox
	stopped   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher builds a dispatcher that accepts work immediately; Run only
// ties shutdown to the caller's context.
func NewDispatcher(process Processor, depth int, log *slog.Logger) *Dispatcher {
	if depth <= 0 {
		depth = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		process:   process,
		log:       log,
		depth:     depth,
		mailboxes: make(map[int64]*mailbox),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Run blocks until ctx is cancelled, then stops intake and waits for
// in-flight workers to finish their current update.
func (d *Dispatcher) Run(ctx context.Context) error {
	<-ctx.Done()

	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.cancel()

	d.wg.Wait()
	return ctx.Err()
}

// Enqueue queues one update behind the user's earlier updates. Returns
// derrors.ErrQueueFull when the user's mailbox is at its depth bound and
// derrors.ErrStopped after shutdown.
func (d *Dispatcher) Enqueue(up domain.LocationUpdate) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return derrors.ErrStopped
	}

	mb := d.mailboxes[up.UserID]
	if mb == nil {
		mb = &mailbox{ch: make(chan domain.LocationUpdate, d.depth)}
		d.mailboxes[up.UserID] = mb
		activeMailboxes.Inc()
		d.wg.Add(1)
		go d.worker(up.UserID, mb)
	}

	select {
	case mb.ch <- up:
		return nil
	default:
		droppedUpdates.Inc()
		return fmt.Errorf("user %d: %w", up.UserID, derrors.ErrQueueFull)
	}
}

// worker drains one user's mailbox in arrival order. It exits on context
// cancellation or after the mailbox stays empty for idleTimeout; the
// removal check and Enqueue's send both run under d.mu, so no update can
// land in an abandoned mailbox.
func (d *Dispatcher) worker(userID int64, mb *mailbox) {
	defer d.wg.Done()

	timer := time.NewTimer(idleTimeout)
	defer timer.Stop()

	for {
		select {
		case <-d.ctx.Done():
			d.remove(userID)
			return
		case up := <-mb.ch:
			d.handle(up)
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(idleTimeout)
		case <-timer.C:
			d.mu.Lock()
			if len(mb.ch) == 0 {
				delete(d.mailboxes, userID)
				activeMailboxes.Dec()
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			timer.Reset(idleTimeout)
		}
	}
}

func (d *Dispatcher) remove(userID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.mailboxes[userID]; ok {
		delete(d.mailboxes, userID)
		activeMailboxes.Dec()
	}
}

func (d *Dispatcher) handle(up domain.LocationUpdate) {
	if _, err := d.process.ProcessUpdate(d.ctx, up); err != nil {
		// Retryable catalog failures and sink errors are logged here; the
		// source stream has already acked, so the update is dropped.
		d.log.Error("process update failed", "user_id", up.UserID, "error", err)
	}
}

// ValidateUpdate rejects malformed reports before they reach the detector.
func ValidateUpdate(up domain.LocationUpdate) error {
	if up.UserID <= 0 {
		return fmt.Errorf("userId: must be positive")
	}
	if up.Latitude < -90 || up.Latitude > 90 {
		return fmt.Errorf("latitude: must be between -90 and 90")
	}
	if up.Longitude < -180 || up.Longitude > 180 {
		return fmt.Errorf("longitude: must be between -180 and 180")
	}
	if up.Timestamp.IsZero() {
		return fmt.Errorf("timestamp: required")
	}
	return nil
}
