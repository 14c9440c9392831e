package ingest

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/geotrackd/fencewatch/internal/derrors"
	"github.com/geotrackd/fencewatch/internal/domain"
)

// blockingProcessor records processed updates and can hold its worker.
type blockingProcessor struct {
	mu      sync.Mutex
	byUser  map[int64][]domain.LocationUpdate
	release chan struct{} // nil means never block
}

func newBlockingProcessor(block bool) *blockingProcessor {
	p := &blockingProcessor{byUser: make(map[int64][]domain.LocationUpdate)}
	if block {
		p.release = make(chan struct{})
	}
	return p
}

func (p *blockingProcessor) ProcessUpdate(_ context.Context, up domain.LocationUpdate) ([]domain.TransitionEvent, error) {
	if p.release != nil {
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byUser[up.UserID] = append(p.byUser[up.UserID], up)
	return nil, nil
}

func (p *blockingProcessor) processed(userID int64) []domain.LocationUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.LocationUpdate, len(p.byUser[userID]))
	copy(out, p.byUser[userID])
	return out
}

func startDispatcher(t *testing.T, proc Processor, depth int) (*Dispatcher, context.CancelFunc) {
	t.Helper()
	d := NewDispatcher(proc, depth, slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = d.Run(ctx) }()
	return d, cancel
}

func up(userID int64, seq int) domain.LocationUpdate {
	return domain.LocationUpdate{
		UserID:    userID,
		Latitude:  float64(seq),
		Longitude: 0,
		Timestamp: time.Unix(1_700_000_000+int64(seq), 0),
	}
}

func TestDispatcherPreservesArrivalOrder(t *testing.T) {
	proc := newBlockingProcessor(false)
	d, cancel := startDispatcher(t, proc, 128)
	defer cancel()

	const n = 100
	for i := range n {
		require.NoError(t, d.Enqueue(up(1, i)))
	}

	require.Eventually(t, func() bool {
		return len(proc.processed(1)) == n
	}, 5*time.Second, 5*time.Millisecond)

	got := proc.processed(1)
	for i := range n {
		require.Equal(t, float64(i), got[i].Latitude, "updates must process in arrival order")
	}
}

func TestDispatcherShedsOnFullQueue(t *testing.T) {
	proc := newBlockingProcessor(true)
	d, cancel := startDispatcher(t, proc, 2)
	defer cancel()

	// First update occupies the worker, the next two fill the mailbox.
	require.NoError(t, d.Enqueue(up(1, 0)))
	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		mb := d.mailboxes[1]
		return mb != nil && len(mb.ch) == 0
	}, time.Second, time.Millisecond, "worker should pick up the first update")
	require.NoError(t, d.Enqueue(up(1, 1)))
	require.NoError(t, d.Enqueue(up(1, 2)))

	err := d.Enqueue(up(1, 3))
	require.ErrorIs(t, err, derrors.ErrQueueFull)

	// A different user is unaffected by user 1's backlog.
	require.NoError(t, d.Enqueue(up(2, 0)))

	close(proc.release)
	require.Eventually(t, func() bool {
		return len(proc.processed(1)) == 3
	}, 5*time.Second, 5*time.Millisecond)

	// The shed update is gone; survivors kept arrival order.
	got := proc.processed(1)
	require.Equal(t, []float64{0, 1, 2}, []float64{got[0].Latitude, got[1].Latitude, got[2].Latitude})
}

func TestDispatcherUsersRunConcurrently(t *testing.T) {
	proc := newBlockingProcessor(true)
	d, cancel := startDispatcher(t, proc, 8)
	defer cancel()

	for userID := int64(1); userID <= 5; userID++ {
		require.NoError(t, d.Enqueue(up(userID, 0)))
	}
	close(proc.release)

	require.Eventually(t, func() bool {
		total := 0
		for userID := int64(1); userID <= 5; userID++ {
			total += len(proc.processed(userID))
		}
		return total == 5
	}, 5*time.Second, 5*time.Millisecond)
}

func TestDispatcherRejectsAfterShutdown(t *testing.T) {
	proc := newBlockingProcessor(false)
	d, cancel := startDispatcher(t, proc, 8)

	cancel()
	require.Eventually(t, func() bool {
		return d.Enqueue(up(1, 0)) != nil
	}, time.Second, time.Millisecond)
	require.ErrorIs(t, d.Enqueue(up(1, 1)), derrors.ErrStopped)
}

func TestValidateUpdate(t *testing.T) {
	valid := domain.LocationUpdate{UserID: 1, Latitude: 40.7, Longitude: -74.0, Timestamp: time.Unix(1_700_000_000, 0)}
	require.NoError(t, ValidateUpdate(valid))

	cases := map[string]func(*domain.LocationUpdate){
		"zero user":          func(u *domain.LocationUpdate) { u.UserID = 0 },
		"negative user":      func(u *domain.LocationUpdate) { u.UserID = -4 },
		"latitude too high":  func(u *domain.LocationUpdate) { u.Latitude = 90.1 },
		"latitude too low":   func(u *domain.LocationUpdate) { u.Latitude = -90.1 },
		"longitude too high": func(u *domain.LocationUpdate) { u.Longitude = 180.5 },
		"longitude too low":  func(u *domain.LocationUpdate) { u.Longitude = -181 },
		"missing timestamp":  func(u *domain.LocationUpdate) { u.Timestamp = time.Time{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			u := valid
			mutate(&u)
			require.Error(t, ValidateUpdate(u))
		})
	}
}
