// Package state owns the per-user containment records. Each user has a
// dedicated mutex so the detector's read-diff-commit sequence runs as a
// critical section scoped to one user id; updates for different users never
// block one another beyond the shard map access.
package state

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/geotrackd/fencewatch/internal/domain"
)

const shardCount = 64

// Clock is injected for eviction tests.
type Clock func() time.Time

type record struct {
	mu    sync.Mutex
	state domain.ContainmentState
	// touched is unix nanos of the last WithUser call, read atomically by
	// the sweeper without taking the record lock.
	touched atomic.Int64
}

type shard struct {
	mu      sync.RWMutex
	records map[int64]*record
}

// Store is the authoritative containment state store. Records are created
// lazily on a user's first update and evicted by TTL since last update or
// when the tracked-user cap is exceeded. Eviction is safe: a later update
// for an evicted user behaves like that user's first update, so re-enters
// are re-announced.
type Store struct {
	shards [shardCount]*shard

	clock     Clock
	ttl       time.Duration
	maxUsers  int
	sweepEach time.Duration

	evicted atomic.Int64
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithTTL bounds how long an idle user's state is retained.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithMaxUsers caps the number of tracked users; the least recently
// updated are evicted first when the cap is exceeded.
func WithMaxUsers(n int) Option {
	return func(s *Store) { s.maxUsers = n }
}

// WithSweepInterval sets how often Run sweeps for expired records.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) { s.sweepEach = d }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		clock:     time.Now,
		ttl:       24 * time.Hour,
		maxUsers:  100_000,
		sweepEach: time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	for i := range s.shards {
		s.shards[i] = &shard{records: make(map[int64]*record)}
	}
	return s
}

func (s *Store) shardFor(userID int64) *shard {
	return s.shards[uint64(userID)%shardCount]
}

// getOrCreate returns the user's record, creating an empty one on first
// use. Idempotent and never fails.
func (s *Store) getOrCreate(userID int64) *record {
	sh := s.shardFor(userID)

	sh.mu.RLock()
	rec := sh.records[userID]
	sh.mu.RUnlock()
	if rec != nil {
		return rec
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if rec = sh.records[userID]; rec != nil {
		return rec
	}
	rec = &record{state: domain.ContainmentState{
		UserID: userID,
		Inside: make(map[int64]struct{}),
	}}
	rec.touched.Store(s.clock().UnixNano())
	sh.records[userID] = rec
	return rec
}

// WithUser runs fn on the user's live record while holding that user's
// lock. fn may mutate the record in place; returning an error commits
// nothing only if fn itself left the record untouched, which is the
// detector's contract for aborted updates. Two concurrent calls for the
// same user serialize; calls for different users proceed independently.
func (s *Store) WithUser(userID int64, fn func(st *domain.ContainmentState) error) error {
	rec := s.getOrCreate(userID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.touched.Store(s.clock().UnixNano())
	return fn(&rec.state)
}

// Snapshot returns a deep copy of the user's state. The zero-value state
// (empty containment set) is returned for unknown users without creating a
// record.
func (s *Store) Snapshot(userID int64) domain.ContainmentState {
	sh := s.shardFor(userID)
	sh.mu.RLock()
	rec := sh.records[userID]
	sh.mu.RUnlock()
	if rec == nil {
		return domain.ContainmentState{UserID: userID, Inside: make(map[int64]struct{})}
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state.Clone()
}

// Len reports how many users currently have state.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.records)
		sh.mu.RUnlock()
	}
	return n
}

// Evicted reports the total number of evicted records.
func (s *Store) Evicted() int64 {
	return s.evicted.Load()
}

// EvictExpired removes records idle longer than the TTL, then enforces the
// tracked-user cap by evicting the least recently updated. Records whose
// lock is held (an update in flight) are skipped and caught on the next
// sweep. Returns the number of evictions.
func (s *Store) EvictExpired(now time.Time) int {
	cutoff := now.Add(-s.ttl).UnixNano()
	n := 0
	for _, sh := range s.shards {
		n += sh.evictOlderThan(cutoff)
	}
	n += s.enforceCap()
	s.evicted.Add(int64(n))
	return n
}

func (sh *shard) evictOlderThan(cutoff int64) int {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	n := 0
	for id, rec := range sh.records {
		if rec.touched.Load() >= cutoff {
			continue
		}
		if !rec.mu.TryLock() {
			continue
		}
		delete(sh.records, id)
		rec.mu.Unlock()
		n++
	}
	return n
}

func (s *Store) enforceCap() int {
	if s.maxUsers <= 0 {
		return 0
	}
	over := s.Len() - s.maxUsers
	if over <= 0 {
		return 0
	}

	type candidate struct {
		userID  int64
		touched int64
	}
	var all []candidate
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id, rec := range sh.records {
			all = append(all, candidate{userID: id, touched: rec.touched.Load()})
		}
		sh.mu.RUnlock()
	}
	sort.Slice(all, func(i, j int) bool { return all[i].touched < all[j].touched })

	n := 0
	for _, c := range all {
		if n >= over {
			break
		}
		sh := s.shardFor(c.userID)
		sh.mu.Lock()
		rec := sh.records[c.userID]
		// Skip records touched since we sampled or currently mid-update.
		if rec != nil && rec.touched.Load() == c.touched && rec.mu.TryLock() {
			delete(sh.records, c.userID)
			rec.mu.Unlock()
			n++
		}
		sh.mu.Unlock()
	}
	return n
}

// Run sweeps expired records until ctx is cancelled.
func (s *Store) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.sweepEach)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.EvictExpired(s.clock())
		}
	}
}
