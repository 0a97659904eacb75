package hashset

import (
	"sync/atomic"

	"github.com/semihalev/zlog/v2"

	"github.com/semihalev/lfindex/hazard"
	"github.com/semihalev/lfindex/internal/segtable"
)

// Default configuration constants, matching
// original_source/src/hash_set.h's MAIN_ARRAY_LEN, SEGMENT_SIZE,
// INIT_NUM_BUCKETS and spec.md §6's LOAD_FACTOR_DEFAULT.
const (
	DefaultMainArrayLen   = 16
	DefaultSegmentSize    = 4
	DefaultInitNumBuckets = 2
	DefaultLoadFactor     = 0.75
)

// MetricsSink receives hash-set observability events. Defined locally
// rather than imported from lfmetrics so this package has no prometheus
// dependency; *lfmetrics.Metrics satisfies it structurally.
type MetricsSink interface {
	ObserveHashsetResize(set string)
	ObserveHashsetBucketMaterialized()
	ObserveHashsetCASRetry(set string)
}

// Option configures a Set at construction.
type Option func(*Set)

// WithMetrics attaches a sink for resize/materialization/retry counters.
func WithMetrics(m MetricsSink) Option {
	return func(s *Set) { s.metrics = m }
}

// WithMainArray overrides the two-level segmented array's shape.
func WithMainArray(mainArrayLen, segmentSize int) Option {
	return func(s *Set) {
		s.mainArrayLen = mainArrayLen
		s.segmentSize = segmentSize
	}
}

// WithInitialBuckets overrides the starting logical capacity.
func WithInitialBuckets(n int) Option {
	return func(s *Set) { s.initBuckets = n }
}

// WithLoadFactor overrides the resize threshold.
func WithLoadFactor(f float64) Option {
	return func(s *Set) { s.loadFactor = f }
}

// Set is the split-ordered hash set of spec.md §4.D / §6 ("hash_set").
type Set struct {
	domain *hazard.Domain
	table  *segtable.Table[node]

	mainArrayLen int
	segmentSize  int
	initBuckets  int
	loadFactor   float64

	capacity atomic.Uint64 // power of two, number of logically active buckets
	setSize  atomic.Int64  // advisory entry count; see spec.md §9 open question

	metrics MetricsSink
	name    string
}

// New creates an empty hash set using domain for hazard-pointer protection.
func New(domain *hazard.Domain, opts ...Option) *Set {
	s := &Set{
		domain:       domain,
		mainArrayLen: DefaultMainArrayLen,
		segmentSize:  DefaultSegmentSize,
		initBuckets:  DefaultInitNumBuckets,
		loadFactor:   DefaultLoadFactor,
		name:         "hashset",
	}
	for _, o := range opts {
		o(s)
	}
	s.table = segtable.New[node](s.mainArrayLen, s.segmentSize)
	s.capacity.Store(uint64(s.initBuckets))
	return s
}

// getBucketList returns bucket b's sentinel node, materializing it (and,
// recursively, its ancestors) if this is the first access. Grounded on
// original_source/src/hash_set.c's initialize_bucket.
func (s *Set) getBucketList(tid int, b uint32) *node {
	if existing := s.table.Load(int(b)); existing != nil {
		return existing
	}
	if b == 0 {
		root := newSentinelCandidate(encodeSentinel(0))
		s.table.CompareAndSwap(0, nil, root)
		return s.table.Load(0)
	}

	parent := s.getBucketList(tid, parentIndex(b))
	candidate := newSentinelCandidate(encodeSentinel(b))

	inserted, winner := s.insertReadyMade(tid, parent, candidate)
	if !inserted {
		// Another thread's sentinel is already in the list; adopt it.
		candidate = winner
	}
	if s.table.CompareAndSwap(int(b), nil, candidate) && s.metrics != nil {
		s.metrics.ObserveHashsetBucketMaterialized()
	}

	if existing := s.table.Load(int(b)); existing != nil {
		return existing
	}
	// Exceptionally rare: lost the table publish race too. The winner of
	// that race published a node equal in key to ours; retry the lookup.
	return s.getBucketList(tid, b)
}

func bucketOf(key uint64, capacity uint64) uint32 {
	return uint32(key % capacity)
}

// Add inserts key. ok is false only when key was already present (duplicate
// is then true). On success it may trigger a lock-free capacity doubling,
// per spec.md §4.D's "Resize".
func (s *Set) Add(tid int, key uint64) (ok, duplicate bool) {
	for {
		cap := s.capacity.Load()
		bucket := bucketOf(key, cap)
		bn := s.getBucketList(tid, bucket)

		done, dup := s.insertOrdinary(tid, bn, encodeOrdinary(key))
		if dup {
			return false, true
		}
		if !done {
			if s.metrics != nil {
				s.metrics.ObserveHashsetCASRetry(s.name)
			}
			continue // lost the splice race; retry with a fresh bucket lookup
		}

		s.domain.Allocated()
		sz := s.setSize.Add(1)
		s.maybeResize(uint64(sz), cap)
		return true, false
	}
}

// Remove deletes key. ok is false only when key was not present (absent is
// then true). Preserves original_source/src/hash_set.c's hs_remove quirk:
// the bucket is materialized even when the key turns out to be absent, and
// setSize is decremented unconditionally on a successful removal (spec.md
// §9 treats this counter as advisory-only, the authoritative presence test
// being the underlying list).
func (s *Set) Remove(tid int, key uint64) (ok, absent bool) {
	cap := s.capacity.Load()
	bucket := bucketOf(key, cap)
	bn := s.getBucketList(tid, bucket)

	done, miss := s.removeOrdinary(tid, bn, encodeOrdinary(key))
	if !done {
		return false, miss
	}
	s.setSize.Add(-1)
	return true, false
}

// Contains reports whether key is present.
func (s *Set) Contains(tid int, key uint64) bool {
	cap := s.capacity.Load()
	bucket := bucketOf(key, cap)
	bn := s.getBucketList(tid, bucket)
	return s.containsOrdinary(tid, bn, encodeOrdinary(key))
}

// maybeResize doubles capacity via CAS once the load factor is reached, as
// long as the result would not exceed the segmented table's addressable
// size. No data moves: doubling only exposes deeper buckets to be
// materialized lazily on next access (spec.md §4.D's "signature feature").
func (s *Set) maybeResize(sz, cap uint64) {
	if cap == 0 {
		return
	}
	if float64(sz)/float64(cap) < s.loadFactor {
		return
	}
	doubled := 2 * cap
	if doubled > uint64(s.table.Cap()) {
		return // capacity_exhausted: silent no-resize, spec.md §7
	}
	if s.capacity.CompareAndSwap(cap, doubled) {
		zlog.Debug("hashset resized", "name", s.name, "from", cap, "to", doubled)
		if s.metrics != nil {
			s.metrics.ObserveHashsetResize(s.name)
		}
	}
}

// Destroy tears down the hazard domain backing this set.
func (s *Set) Destroy() {
	s.domain.Setdown()
}
