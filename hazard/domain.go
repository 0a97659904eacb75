// Package hazard implements the safe-memory-reclamation substrate shared by
// the llist, hashset and skiplist packages: a per-thread table of hazard
// pointers plus per-thread retired-node lists and a scan/reclaim routine.
//
// Grounded on original_source/src/linked_list.c (hp_save_addr, hp_clear_addr,
// hp_retire_node, hp_scan) and original_source/src/hp.c (the skip list's
// per-level variant of the same registry). spec.md §9 calls for
// parametrizing the registry by hazard width instead of duplicating it per
// container; Domain does that via the width argument to NewDomain.
package hazard

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/semihalev/zlog/v2"
)

// extraThreshold is added to the number of live hazard slots to derive the
// per-thread retire threshold R, per spec.md §3/§4.B: R = count_of_hazards + 2.
const extraThreshold = 2

// retiredNode is one node a thread has logically removed and is waiting to
// free, paired with the function that actually releases it. Free is called
// at most once, from the owning thread's scan.
type retiredNode struct {
	addr unsafe.Pointer
	free func()
}

// slot is one thread's row in the hazard table. Only the owning thread
// writes hazards[*] and touches retired/dCount; every other thread only
// reads hazards[*] with acquire semantics during a scan.
type slot struct {
	hazards []atomic.Pointer[byte] // width entries; non-nil means "protected"
	retired []retiredNode
	dCount  int
}

// MetricsSink receives hazard-domain observability events. It is defined
// here rather than imported from lfmetrics so this package stays free of a
// prometheus dependency; *lfmetrics.Metrics satisfies it structurally.
type MetricsSink interface {
	ObserveHazardScan()
	ObserveHazardRetired()
	ObserveHazardFreed(n int)
	SetHazardLiveNodes(domain string, n int64)
}

// Domain owns one hazard-pointer table. A container (llist.Set, hashset.Set,
// skiplist.List) is constructed with a *Domain rather than reaching for a
// package-level singleton, so tests can build isolated domains per spec.md
// §9 ("Global mutable state").
type Domain struct {
	name  string
	width int // hazard slots per thread: HP_K for linked list/hash set, 2*MAX_LEVELS for skip list

	slots []atomic.Pointer[slot] // index == tid, length MaxThreads

	countOfHazards atomic.Int64 // bumped once per thread that allocates a slot
	liveNodes      atomic.Int64 // allocations - frees; spec.md invariant 5

	metrics MetricsSink
	down    atomic.Bool
}

// SetMetrics attaches a sink that receives scan/retire/free/live-node
// events. Optional; nil (the default) disables all observability calls.
func (d *Domain) SetMetrics(m MetricsSink) { d.metrics = m }

// NewDomain creates a hazard-pointer registry for up to maxThreads
// goroutines, each owning width protected-address slots. name is used only
// for log correlation.
func NewDomain(name string, maxThreads, width int) *Domain {
	if maxThreads <= 0 {
		maxThreads = 32
	}
	if width <= 0 {
		width = 2
	}
	return &Domain{
		name:  name,
		width: width,
		slots: make([]atomic.Pointer[slot], maxThreads),
	}
}

// Width reports the number of hazard slots a thread owns in this domain.
func (d *Domain) Width() int { return d.width }

// LiveNodes reports allocations - frees across this domain's lifetime.
func (d *Domain) LiveNodes() int64 { return d.liveNodes.Load() }

// Allocated must be called by a container exactly once per node it links
// into a shared structure, so LiveNodes (and thus invariant 5) stays exact.
func (d *Domain) Allocated() { d.liveNodes.Add(1) }

// acquire returns tid's slot, lazily allocating it on first use. tid must be
// a stable index in [0, maxThreads) supplied by the caller (thread-identity
// allocation is an external collaborator per spec.md §1).
func (d *Domain) acquire(tid int) *slot {
	if s := d.slots[tid].Load(); s != nil {
		return s
	}
	ns := &slot{hazards: make([]atomic.Pointer[byte], d.width)}
	if d.slots[tid].CompareAndSwap(nil, ns) {
		d.countOfHazards.Add(1)
		return ns
	}
	// Lost the race to another goroutine acquiring the same tid concurrently;
	// the winner's slot is authoritative.
	return d.slots[tid].Load()
}

// Publish stores addr (release semantics) into tid's hazard slot `index`,
// forbidding any other thread's scan from freeing the node at addr until
// Clear is called.
func (d *Domain) Publish(tid, index int, addr unsafe.Pointer) {
	d.acquire(tid).hazards[index].Store((*byte)(addr))
}

// Clear releases the hazard published at tid's slot `index`.
func (d *Domain) Clear(tid, index int) {
	d.acquire(tid).hazards[index].Store(nil)
}

// ClearAll releases every hazard tid currently holds; used when a traversal
// restarts from the head and no longer needs its prior predecessor/current
// protection.
func (d *Domain) ClearAll(tid int) {
	s := d.acquire(tid)
	for i := range s.hazards {
		s.hazards[i].Store(nil)
	}
}

// threshold returns R = count_of_hazards + 2 (spec.md §4.B).
func (d *Domain) threshold() int {
	return int(d.countOfHazards.Load()) + extraThreshold
}

// Retire appends addr (to be released via free) to tid's retired list and,
// once the list exceeds the threshold, runs Scan.
func (d *Domain) Retire(tid int, addr unsafe.Pointer, free func()) {
	s := d.acquire(tid)
	s.retired = append(s.retired, retiredNode{addr: addr, free: free})
	s.dCount++
	if d.metrics != nil {
		d.metrics.ObserveHazardRetired()
	}
	if s.dCount > d.threshold() {
		d.Scan(tid)
	}
}

// Scan is a thread-local pass: snapshot every non-null hazard published by
// any thread in this domain, then free every one of tid's retired nodes that
// is not in that snapshot. No locks, no atomics beyond the hazard loads
// themselves. Grounded on original_source/src/linked_list.c's hp_scan.
func (d *Domain) Scan(tid int) {
	if d.metrics != nil {
		d.metrics.ObserveHazardScan()
	}
	s := d.acquire(tid)
	if len(s.retired) == 0 {
		return
	}

	protected := make(map[unsafe.Pointer]struct{}, 64)
	for i := range d.slots {
		other := d.slots[i].Load()
		if other == nil {
			continue
		}
		for h := range other.hazards {
			if p := other.hazards[h].Load(); p != nil {
				protected[unsafe.Pointer(p)] = struct{}{}
			}
		}
	}

	kept := s.retired[:0]
	freed := 0
	for _, rn := range s.retired {
		if _, hazarded := protected[rn.addr]; hazarded {
			kept = append(kept, rn)
			continue
		}
		rn.free()
		d.liveNodes.Add(-1)
		freed++
	}
	s.retired = kept
	s.dCount = len(kept)

	if freed > 0 {
		zlog.Debug("hazard scan reclaimed nodes", "domain", d.name, "tid", tid, "freed", freed, "kept", len(kept))
		if d.metrics != nil {
			d.metrics.ObserveHazardFreed(freed)
		}
	}
	if d.metrics != nil {
		d.metrics.SetHazardLiveNodes(d.name, d.liveNodes.Load())
	}
}

// Setdown tears the domain down: every slot's still-retired nodes are freed
// unconditionally (no concurrent accessor may remain) and no further
// operations may run. Grounded on original_source/src/linked_list.c's
// teardown path referenced in spec.md §4.B.
func (d *Domain) Setdown() {
	if !d.down.CompareAndSwap(false, true) {
		return
	}
	total := 0
	for i := range d.slots {
		s := d.slots[i].Load()
		if s == nil {
			continue
		}
		for _, rn := range s.retired {
			rn.free()
			d.liveNodes.Add(-1)
			total++
		}
		s.retired = nil
	}
	zlog.Info("hazard domain setdown complete", "domain", d.name, "freed", total)
}

// String aids test failure messages.
func (d *Domain) String() string {
	return fmt.Sprintf("Domain{%s width=%d threads=%d live=%d}", d.name, d.width, len(d.slots), d.liveNodes.Load())
}
