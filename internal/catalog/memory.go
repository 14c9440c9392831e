package catalog

import (
	"context"
	"sync"

	"github.com/geotrackd/fencewatch/internal/derrors"
	"github.com/geotrackd/fencewatch/internal/domain"
	"github.com/geotrackd/fencewatch/internal/geo"
)

// MemoryStore keeps the catalog in a mutex-guarded map. It favors clarity
// over performance and doubles as the test double for the detector.
type MemoryStore struct {
	mu     sync.RWMutex
	fences map[int64]domain.Geofence
}

var _ Provider = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{fences: make(map[int64]domain.Geofence)}
}

// Put inserts or replaces a geofence.
func (s *MemoryStore) Put(_ context.Context, f domain.Geofence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fences[f.ID] = f
	return nil
}

// Delete removes a geofence; deleting an absent id is not an error.
func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fences, id)
	return nil
}

// Get returns one geofence or derrors.ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, id int64) (domain.Geofence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.fences[id]; ok {
		return f, nil
	}
	return domain.Geofence{}, derrors.ErrNotFound
}

// ListActive returns a snapshot copy; callers never alias internal state.
func (s *MemoryStore) ListActive(_ context.Context) ([]domain.Geofence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Geofence, 0, len(s.fences))
	for _, f := range s.fences {
		out = append(out, f)
	}
	return out, nil
}

func (s *MemoryStore) ListNear(ctx context.Context, p geo.Point, maxRadiusM float64) ([]domain.Geofence, error) {
	all, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return filterNear(all, p, maxRadiusM), nil
}
