// Package llist implements the ordered linked set: a sorted singly-linked
// list with lock-free insert/remove/contains, following Harris & Michael.
//
// Grounded on original_source/src/linked_list.c (ll_find, ll_insert,
// ll_remove, ll_contains). The mark bit that in the C source is stolen from
// the low bit of the next-pointer word is represented here, per SPEC_FULL.md
// §3, as an immutable {next, marked} record swapped atomically behind
// atomic.Pointer — the same "CAS an immutable value behind an atomic
// pointer" idiom the teacher's cache/uint64_sync_map.go and
// other_examples/dustinxie-lockfree use for their own next-pointers, adapted
// so that marking and unlinking still happen in a single CAS as spec.md
// §4.C requires.
package llist

import (
	"sync/atomic"
	"unsafe"

	"github.com/semihalev/lfindex/hazard"
)

// hpCurr and hpPred are the two hazard-pointer slots (HP_K=2) a thread
// publishes into while traversing: one for the node under inspection, one
// for its predecessor. Grounded on spec.md §3 "Hazard-pointer slot".
const (
	hpCurr = 0
	hpPred = 1
)

// Width is the number of hazard slots per thread this package needs; pass
// it to hazard.NewDomain when building a domain shared with other
// containers is not desired.
const Width = 2

// link is the immutable {successor, deletion-mark} pair a node's next field
// points to. Once a node's link has marked == true it never reverts —
// spec.md §3's invariant on the mark bit.
type link struct {
	next   *node
	marked bool
}

type node struct {
	key  uint64
	next atomic.Pointer[link]
}

func newNode(key uint64, next *node) *node {
	n := &node{key: key}
	n.next.Store(&link{next: next})
	return n
}

// loadNext returns the node's successor and whether the edge to it is
// marked deleted.
func (n *node) loadNext() (*node, bool) {
	l := n.next.Load()
	return l.next, l.marked
}

// casNext implements the tagged-pointer cas(slot, expected, new) primitive
// from spec.md §4.A: it succeeds only if the current (successor, mark) pair
// matches exactly what the caller observed.
func (n *node) casNext(oldNext *node, oldMarked bool, newNext *node, newMarked bool) bool {
	old := n.next.Load()
	if old.next != oldNext || old.marked != oldMarked {
		return false
	}
	return n.next.CompareAndSwap(old, &link{next: newNext, marked: newMarked})
}

// Set is the ordered linked set of spec.md §4.C / §6 ("linked_set").
type Set struct {
	domain *hazard.Domain
	head   *node
}

// New creates an empty set using domain for hazard-pointer protection. The
// head is the spec's unremovable sentinel whose key is -infinity relative
// to the comparator; since keys are uint64 here the head is never compared
// against, only ever used as the initial predecessor.
func New(domain *hazard.Domain) *Set {
	return &Set{domain: domain, head: newNode(0, nil)}
}

func (s *Set) publish(tid, idx int, n *node) {
	s.domain.Publish(tid, idx, unsafe.Pointer(n))
}

func (s *Set) clear(tid, idx int) {
	s.domain.Clear(tid, idx)
}

// find walks from the head, physically unlinking marked nodes as it goes,
// and returns (pred, curr) such that pred.key < key <= curr.key (curr may be
// nil at the tail). Grounded verbatim on spec.md §4.C's find algorithm.
func (s *Set) find(tid int, key uint64) (pred, curr *node) {
restart:
	pred = s.head
	curr, _ = pred.loadNext()
	s.publish(tid, hpPred, pred)

	for {
		if curr == nil {
			s.clear(tid, hpCurr)
			return pred, nil
		}
		s.publish(tid, hpCurr, curr)

		// Validate: pred's edge to curr must still hold, unmarked.
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

func (s *Set) retire(tid int, n *node) {
	s.domain.Retire(tid, unsafe.Pointer(n), func() {})
}

// Insert adds key to the set. ok is false only when the key was already
// present (duplicate is then true).
func (s *Set) Insert(tid int, key uint64) (ok, duplicate bool) {
	for {
		pred, curr := s.find(tid, key)
		if curr != nil && curr.key == key {
			s.clear(tid, hpCurr)
			s.clear(tid, hpPred)
			return false, true
		}
		n := newNode(key, curr)
		if pred.casNext(curr, false, n, false) {
			s.domain.Allocated()
			s.clear(tid, hpCurr)
			s.clear(tid, hpPred)
			return true, false
		}
		// Lost the splice race; n is discarded unlinked and unreferenced,
		// safe to let the garbage collector reclaim it directly.
	}
}

// Remove deletes key from the set. ok is false only when the key was not
// present (absent is then true). The successful mark CAS below is the
// linearization point of removal.
func (s *Set) Remove(tid int, key uint64) (ok, absent bool) {
	for {
		pred, curr := s.find(tid, key)
		if curr == nil || curr.key != key {
			s.clear(tid, hpCurr)
			s.clear(tid, hpPred)
			return false, true
		}
		next, marked := curr.loadNext()
		if marked {
			s.clear(tid, hpCurr)
			s.clear(tid, hpPred)
			return false, true
		}
		if !curr.casNext(next, false, next, true) {
			continue
		}
		_ = pred
		// Linearization point: curr is now logically removed. Run find
		// again so its side effect (physical unlink) reclaims curr.
		s.find(tid, key)
		s.clear(tid, hpCurr)
		s.clear(tid, hpPred)
		return true, false
	}
}

// Contains reports whether key is present.
func (s *Set) Contains(tid int, key uint64) bool {
	_, curr := s.find(tid, key)
	found := curr != nil && curr.key == key
	s.clear(tid, hpCurr)
	s.clear(tid, hpPred)
	return found
}

// Destroy tears down the hazard domain backing this set (Domain.Setdown),
// releasing every node still on a retired list. Nodes still linked in the
// set are left to the garbage collector.
func (s *Set) Destroy() {
	s.domain.Setdown()
}
