package events

import (
	"context"
	"sync"

	"github.com/geotrackd/fencewatch/internal/derrors"
	"github.com/geotrackd/fencewatch/internal/domain"
)

// MemoryStore keeps events in an append-only slice. Intentionally favors
// clarity over performance; production deployments use PostgresStore.
type MemoryStore struct {
	mu     sync.RWMutex
	events []domain.TransitionEvent
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, ev domain.TransitionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID int64, limit int) ([]domain.TransitionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterNewestFirst(s.events, limit, func(ev domain.TransitionEvent) bool {
		return ev.UserID == userID
	}), nil
}

func (s *MemoryStore) ListByGeofence(_ context.Context, geofenceID int64, limit int) ([]domain.TransitionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterNewestFirst(s.events, limit, func(ev domain.TransitionEvent) bool {
		return ev.GeofenceID == geofenceID
	}), nil
}

// Len reports the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func filterNewestFirst(events []domain.TransitionEvent, limit int, keep func(domain.TransitionEvent) bool) []domain.TransitionEvent {
	if limit < 0 {
		limit = 0
	}
	out := make([]domain.TransitionEvent, 0, limit)
	for i := len(events) - 1; i >= 0 && len(out) < limit; i-- {
		if keep(events[i]) {
			out = append(out, events[i])
		}
	}
	return out
}

// MemoryLocationStore is the in-memory location trail.
type MemoryLocationStore struct {
	mu      sync.RWMutex
	updates map[int64][]domain.LocationUpdate
}

var _ LocationStore = (*MemoryLocationStore)(nil)

func NewMemoryLocationStore() *MemoryLocationStore {
	return &MemoryLocationStore{updates: make(map[int64][]domain.LocationUpdate)}
}

func (s *MemoryLocationStore) Record(_ context.Context, up domain.LocationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates[up.UserID] = append(s.updates[up.UserID], up)
	return nil
}

func (s *MemoryLocationStore) Latest(_ context.Context, userID int64) (domain.LocationUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.updates[userID]
	if len(history) == 0 {
		return domain.LocationUpdate{}, derrors.ErrNotFound
	}
	return history[len(history)-1], nil
}

func (s *MemoryLocationStore) History(_ context.Context, userID int64, limit int) ([]domain.LocationUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit < 0 {
		limit = 0
	}
	history := s.updates[userID]
	out := make([]domain.LocationUpdate, 0, limit)
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, history[i])
	}
	return out, nil
}
