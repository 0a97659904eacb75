// Package segtable implements the two-level segmented array hashset uses
// for its main bucket table: a fixed outer array of segment pointers, each
// segment a fixed array of slots, with segments allocated lazily via a
// single CAS.
//
// Grounded on the teacher's cache/segment_uint64_map.go (SegmentUInt64Map's
// segments []*segment sharding, allocated once and read without locking
// thereafter), adapted from that file's mutex-guarded segment allocation to
// a lock-free CAS-based allocation: spec.md §3/§4.D requires "segments are
// allocated lazily with a single CAS into the outer array slot, with the
// loser freeing its candidate", which a RWMutex cannot express losslessly
// under concurrent first-touch. The element type is generic so hashset can
// store *node pointers without this package depending on hashset.
package segtable

import "sync/atomic"

// Table is a mainLen x segSize segmented array of *T slots, each slot
// independently swappable via CompareAndSwap, with segments materialized
// lazily.
type Table[T any] struct {
	segSize  int
	segments []atomic.Pointer[[]atomic.Pointer[T]]
}

// New creates a table with mainLen segments of segSize slots each; no
// memory is allocated for a segment until its first write.
func New[T any](mainLen, segSize int) *Table[T] {
	return &Table[T]{
		segSize:  segSize,
		segments: make([]atomic.Pointer[[]atomic.Pointer[T]], mainLen),
	}
}

// Cap reports the maximum number of slots this table can ever address.
func (t *Table[T]) Cap() int {
	return len(t.segments) * t.segSize
}

func (t *Table[T]) ensureSegment(mainIdx int) *[]atomic.Pointer[T] {
	if seg := t.segments[mainIdx].Load(); seg != nil {
		return seg
	}
	fresh := make([]atomic.Pointer[T], t.segSize)
	if t.segments[mainIdx].CompareAndSwap(nil, &fresh) {
		return &fresh
	}
	// Lost the race; the winner's segment is authoritative and the fresh
	// slice we allocated is simply left for the garbage collector.
	return t.segments[mainIdx].Load()
}

// Load returns the slot at idx, or nil if its segment was never
// materialized or the slot itself is empty.
func (t *Table[T]) Load(idx int) *T {
	mainIdx, segIdx := idx/t.segSize, idx%t.segSize
	seg := t.segments[mainIdx].Load()
	if seg == nil {
		return nil
	}
	return (*seg)[segIdx].Load()
}

// CompareAndSwap attempts to publish new into idx's slot, materializing the
// backing segment on first use.
func (t *Table[T]) CompareAndSwap(idx int, old, new *T) bool {
	mainIdx, segIdx := idx/t.segSize, idx%t.segSize
	seg := t.ensureSegment(mainIdx)
	return (*seg)[segIdx].CompareAndSwap(old, new)
}
