package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/geotrackd/fencewatch/internal/domain"
)

type StoreSuite struct {
	suite.Suite
	store *Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.store = NewStore()
}

func (s *StoreSuite) TestLazyCreation() {
	s.Run("snapshot of unknown user is empty and creates nothing", func() {
		st := s.store.Snapshot(42)
		s.Equal(int64(42), st.UserID)
		s.Empty(st.Inside)
		s.Equal(0, s.store.Len())
	})

	s.Run("first WithUser creates an empty record", func() {
		err := s.store.WithUser(42, func(st *domain.ContainmentState) error {
			s.Empty(st.Inside)
			s.False(st.HasLocation)
			return nil
		})
		s.Require().NoError(err)
		s.Equal(1, s.store.Len())
	})

	s.Run("repeated WithUser reuses the record", func() {
		for range 3 {
			s.Require().NoError(s.store.WithUser(42, func(*domain.ContainmentState) error { return nil }))
		}
		s.Equal(1, s.store.Len())
	})
}

func (s *StoreSuite) TestSnapshotIsCopy() {
	s.Require().NoError(s.store.WithUser(7, func(st *domain.ContainmentState) error {
		st.Inside[100] = struct{}{}
		return nil
	}))

	snap := s.store.Snapshot(7)
	snap.Inside[200] = struct{}{}

	again := s.store.Snapshot(7)
	s.True(again.Contains(100))
	s.False(again.Contains(200))
}

func (s *StoreSuite) TestWithUserSerializesPerUser() {
	// 100 goroutines each add a distinct id; under the per-user lock every
	// mutation must survive.
	const workers = 100
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			_ = s.store.WithUser(1, func(st *domain.ContainmentState) error {
				st.Inside[n] = struct{}{}
				return nil
			})
		}(int64(i))
	}
	wg.Wait()

	s.Len(s.store.Snapshot(1).Inside, workers)
}

func (s *StoreSuite) TestDistinctUsersDoNotContend() {
	// Hold user 1's lock while updating user 2; user 2 must not block.
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = s.store.WithUser(1, func(*domain.ContainmentState) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	done := make(chan struct{})
	go func() {
		_ = s.store.WithUser(2, func(*domain.ContainmentState) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.Fail("update for a different user blocked behind user 1's lock")
	}
	close(release)
}

func (s *StoreSuite) TestTTLEviction() {
	now := time.Unix(1_700_000_000, 0)
	store := NewStore(
		WithTTL(time.Hour),
		WithClock(func() time.Time { return now }),
	)

	s.Require().NoError(store.WithUser(1, func(*domain.ContainmentState) error { return nil }))

	now = now.Add(30 * time.Minute)
	s.Require().NoError(store.WithUser(2, func(*domain.ContainmentState) error { return nil }))

	now = now.Add(45 * time.Minute)
	s.Equal(1, store.EvictExpired(now), "only user 1 is past the TTL")
	s.Equal(1, store.Len())
	s.Equal(int64(1), store.Evicted())

	// Evicted user comes back as a first-timer.
	s.Empty(store.Snapshot(1).Inside)
}

func (s *StoreSuite) TestCapEvictsLeastRecentlyUpdated() {
	now := time.Unix(1_700_000_000, 0)
	store := NewStore(
		WithTTL(24*time.Hour),
		WithMaxUsers(3),
		WithClock(func() time.Time { return now }),
	)

	for i := range 5 {
		s.Require().NoError(store.WithUser(int64(i), func(st *domain.ContainmentState) error {
			st.Inside[int64(i)] = struct{}{}
			return nil
		}))
		now = now.Add(time.Minute)
	}

	s.Equal(2, store.EvictExpired(now))
	s.Equal(3, store.Len())

	// Oldest two (users 0, 1) are gone; newest three survive.
	s.Empty(store.Snapshot(0).Inside)
	s.Empty(store.Snapshot(1).Inside)
	s.True(store.Snapshot(4).Contains(4))
}
