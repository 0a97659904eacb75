package skiplist

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/semihalev/zlog/v2"

	"github.com/semihalev/lfindex/hazard"
)

// Width is the number of hazard slots per thread this package needs: two
// per level (current, predecessor), per spec.md §3's "Hazard-pointer slot"
// for the skip list.
const Width = 2 * MaxLevels

// OverlapError reports that an inserted interval partially overlaps an
// existing one without containing or being contained by it — an
// application error per spec.md §4.E, not a retried condition.
type OverlapError struct {
	Existing, Attempted Interval
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("skiplist: %s overlaps existing %s", e.Attempted, e.Existing)
}

// MetricsSink receives skip-list observability events. Defined locally
// rather than imported from lfmetrics so this package has no prometheus
// dependency; *lfmetrics.Metrics satisfies it structurally.
type MetricsSink interface {
	ObserveSkiplistCASRetry(list string)
}

// List is the lock-free skip list of spec.md §4.E / §6 ("skip_list").
type List struct {
	domain    *hazard.Domain
	head      *node
	highWater atomic.Int32 // current maximum level present, monotonically non-decreasing
	metrics   MetricsSink
	name      string
}

// New creates an empty skip list using domain for hazard-pointer
// protection. highWater starts at 1, matching
// original_source/src/skiplist.c's sl_init.
func New(domain *hazard.Domain) *List {
	l := &List{domain: domain, head: newHead(MaxLevels), name: "skiplist"}
	l.highWater.Store(1)
	return l
}

// SetMetrics attaches a sink for CAS-retry counters.
func (l *List) SetMetrics(m MetricsSink) { l.metrics = m }

func (l *List) publish(tid, idx int, n *node) {
	l.domain.Publish(tid, idx, unsafe.Pointer(n))
}

func (l *List) clearAll(tid int) {
	l.domain.ClearAll(tid)
}

func (l *List) retire(tid int, n *node) {
	l.domain.Retire(tid, unsafe.Pointer(n), func() {})
}

func (l *List) bumpHighWater(levels int) {
	for {
		hw := l.highWater.Load()
		if int32(levels) <= hw {
			return
		}
		if l.highWater.CompareAndSwap(hw, int32(levels)) {
			return
		}
	}
}

// Insert adds key. ok is true only on success; duplicate is true if an
// existing interval already contains key; err is a non-nil *OverlapError if
// key partially overlaps an existing interval without containment.
// Grounded on original_source/src/skiplist.c's sl_insert.
func (l *List) Insert(tid int, key Interval) (ok, duplicate bool, err error) {
	for {
		top := int(l.highWater.Load())
		preds, succs := l.findPreds(tid, key, top, assistUnlink)

		if succs[0] != nil {
			switch keyCmp(succs[0].key, key) {
			case relEqual:
				l.clearAll(tid)
				return false, true, nil
			case relOverlapError:
				existing := succs[0].key
				l.clearAll(tid)
				return false, false, &OverlapError{Existing: existing, Attempted: key}
			}
		}

		levels := randomLevels()
		var succArr []*node
		if levels > 0 {
			succArr = make([]*node, levels)
			copy(succArr, succs[:levels])
		}
		n := newNode(key, levels, succArr)

		if !preds[0].casLevel(0, succs[0], false, n, false) {
			if l.metrics != nil {
				l.metrics.ObserveSkiplistCASRetry(l.name)
			}
			continue // lost the linearizing CAS; retry from scratch
		}
		l.domain.Allocated()
		l.bumpHighWater(levels)

		// Splice in the remaining levels, reconciling with concurrent
		// structural changes as we go (spec.md §4.E's insert algorithm).
		for lvl := 1; lvl < levels; lvl++ {
			for {
				if preds[lvl].casLevel(lvl, succs[lvl], false, n, false) {
					break
				}
				preds, succs = l.findPreds(tid, key, int(l.highWater.Load()), assistUnlink)

				curNext, curMarked := n.loadLevel(lvl)
				if curMarked {
					break // node already torn down cooperatively at this level
				}
				if curNext != succs[lvl] {
					n.casLevel(lvl, curNext, curMarked, succs[lvl], false)
				}
			}
		}

		l.clearAll(tid)
		return true, false, nil
	}
}

// Remove deletes the node whose interval contains key. ok is false only
// when no such node exists (absent is then true). The successful level-0
// mark CAS is the linearization point. Preserves
// original_source/src/skiplist.c's sl_remove early-return: physical
// unlink of level 0 is left to the next traversal's assistUnlink rather
// than forced synchronously here (spec.md §9).
func (l *List) Remove(tid int, key Interval) (ok, absent bool) {
	for {
		top := int(l.highWater.Load())
		preds, succs := l.findPreds(tid, key, top, assistUnlink)

		target := succs[0]
		if target == nil || keyCmp(target.key, key) != relEqual {
			l.clearAll(tid)
			return false, true
		}

		for lvl := target.numLevels() - 1; lvl >= 1; lvl-- {
			target.markLevel(lvl)
		}

		next, marked := target.loadLevel(0)
		if marked {
			l.clearAll(tid)
			return false, true
		}
		if !target.casLevel(0, next, false, next, true) {
			if l.metrics != nil {
				l.metrics.ObserveSkiplistCASRetry(l.name)
			}
			continue
		}
		l.clearAll(tid)
		return true, false
	}
}

// Lookup returns the interval of the node that contains key, without unlinking
// any marked node it passes over (spec.md §4.E's DONT_UNLINK policy).
func (l *List) Lookup(tid int, key Interval) (Interval, bool) {
	top := int(l.highWater.Load())
	_, succs := l.findPreds(tid, key, top, dontUnlink)
	l.clearAll(tid)

	if succs[0] == nil || keyCmp(succs[0].key, key) != relEqual {
		return Interval{}, false
	}
	return succs[0].key, true
}

// MinKey returns the smallest non-marked interval reachable at level 0, and
// false if the list is empty.
func (l *List) MinKey() (Interval, bool) {
	curr, _ := l.head.loadLevel(0)
	for curr != nil {
		next, marked := curr.loadLevel(0)
		if !marked {
			return curr.key, true
		}
		curr = next
	}
	return Interval{}, false
}

// Count walks level 0 and counts every link, including marked nodes not yet
// physically unlinked. This is a diagnostic-only primitive, not a
// linearizable size, per spec.md §4.E/§9.
func (l *List) Count() int {
	n := 0
	curr, _ := l.head.loadLevel(0)
	for curr != nil {
		n++
		curr, _ = curr.loadLevel(0)
	}
	return n
}

// Destroy tears down the hazard domain backing this list.
func (l *List) Destroy() {
	zlog.Info("skiplist destroy", "name", l.name, "count", l.Count())
	l.domain.Setdown()
}
