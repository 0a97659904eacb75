package hashset

import (
	"sync/atomic"
	"unsafe"

	"github.com/semihalev/lfindex/hazard"
)

// Width is the number of hazard slots per thread this package needs.
const Width = 2

const (
	hpCurr = 0
	hpPred = 1
)

// link and node mirror llist's markable-pointer design (see
// SPEC_FULL.md §3): the hash set needs direct access to node addresses
// (a bucket *is* a pointer to a sentinel node), which a black-box Set type
// cannot expose, so the split-ordered list is implemented directly here
// rather than layered through package llist.
type link struct {
	next   *node
	marked bool
}

type node struct {
	key  uint32 // encoded key: sentinel (even) or ordinary (odd)
	next atomic.Pointer[link]
}

func (n *node) loadNext() (*node, bool) {
	l := n.next.Load()
	return l.next, l.marked
}

func (n *node) casNext(oldNext *node, oldMarked bool, newNext *node, newMarked bool) bool {
	old := n.next.Load()
	if old.next != oldNext || old.marked != oldMarked {
		return false
	}
	return n.next.CompareAndSwap(old, &link{next: newNext, marked: newMarked})
}

func newSentinelCandidate(key uint32) *node {
	n := &node{key: key}
	n.next.Store(&link{})
	return n
}

func (s *Set) publish(tid, idx int, n *node) {
	s.domain.Publish(tid, idx, unsafe.Pointer(n))
}

func (s *Set) clearHazards(tid int) {
	s.domain.Clear(tid, hpCurr)
	s.domain.Clear(tid, hpPred)
}

func (s *Set) retire(tid int, n *node) {
	s.domain.Retire(tid, unsafe.Pointer(n), func() {})
}

// find walks the shared list starting at start (a bucket's materialized
// sentinel, or the global head for bucket 0) and returns (pred, curr) such
// that pred.key < key <= curr.key. Identical in shape to
// original_source/src/linked_list.c's ll_find / spec.md §4.C, parametrized
// on a starting predecessor so the hash set can begin its search at a
// bucket's sentinel rather than always at the global head.
func (s *Set) find(tid int, start *node, key uint32) (pred, curr *node) {
restart:
	pred = start
	curr, _ = pred.loadNext()
	s.publish(tid, hpPred, pred)

	for {
		if curr == nil {
			s.domain.Clear(tid, hpCurr)
			return pred, nil
		}
		s.publish(tid, hpCurr, curr)

		predNext, predMarked := pred.loadNext()
		if predMarked || predNext != curr {
			goto restart
		}

		next, marked := curr.loadNext()
		if marked {
			if !pred.casNext(curr, false, next, false) {
				goto restart
			}
			s.retire(tid, curr)
			curr = next
			continue
		}

		if curr.key >= key {
			return pred, curr
		}

		pred = curr
		s.publish(tid, hpPred, pred)
		curr = next
	}
}

// insertOrdinary inserts an ordinary (user) key into the list reachable
// from start. ok is false with dup true if the encoded key already exists;
// both are false if the splice CAS lost a race, and the caller retries.
func (s *Set) insertOrdinary(tid int, start *node, encoded uint32) (ok, dup bool) {
	pred, curr := s.find(tid, start, encoded)
	if curr != nil && curr.key == encoded {
		s.clearHazards(tid)
		return false, true
	}
	n := &node{key: encoded}
	n.next.Store(&link{next: curr})
	ok = pred.casNext(curr, false, n, false)
	s.clearHazards(tid)
	return ok, false
}

// removeOrdinary marks and (via a follow-up find) physically unlinks the
// node holding encoded, starting the search from start.
func (s *Set) removeOrdinary(tid int, start *node, encoded uint32) (ok, absent bool) {
	for {
		pred, curr := s.find(tid, start, encoded)
		if curr == nil || curr.key != encoded {
			s.clearHazards(tid)
			return false, true
		}
		_ = pred
		next, marked := curr.loadNext()
		if marked {
			s.clearHazards(tid)
			return false, true
		}
		if !curr.casNext(next, false, next, true) {
			continue
		}
		s.find(tid, start, encoded) // assist physical unlink
		s.clearHazards(tid)
		return true, false
	}
}

// containsOrdinary reports whether encoded is reachable from start.
func (s *Set) containsOrdinary(tid int, start *node, encoded uint32) bool {
	_, curr := s.find(tid, start, encoded)
	found := curr != nil && curr.key == encoded
	s.clearHazards(tid)
	return found
}

// insertReadyMade splices a caller-supplied sentinel candidate into the
// list reachable from start, per spec.md §4.D's "insert_ready_made": unlike
// insertOrdinary it never allocates, since the candidate's own address must
// become the bucket pointer if it wins the race. winner is the node that
// ended up in the list under candidate's key — candidate itself on success,
// or the other thread's node on a lost race.
func (s *Set) insertReadyMade(tid int, start *node, candidate *node) (inserted bool, winner *node) {
	for {
		pred, curr := s.find(tid, start, candidate.key)
		if curr != nil && curr.key == candidate.key {
			s.clearHazards(tid)
			return false, curr
		}
		candidate.next.Store(&link{next: curr})
		if pred.casNext(curr, false, candidate, false) {
			s.clearHazards(tid)
			return true, candidate
		}
	}
}
