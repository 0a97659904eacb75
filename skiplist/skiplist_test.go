package skiplist

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/semihalev/lfindex/hazard"
	"github.com/semihalev/lfindex/lfmetrics"
)

func newTestList() *List {
	return New(hazard.NewDomain("skiplist-test", 32, Width))
}

// TestS4IntervalOverlap is spec.md §8 scenario S4.
func TestS4IntervalOverlap(t *testing.T) {
	l := newTestList()

	ok, dup, err := l.Insert(0, Interval{10, 20})
	require.True(t, ok)
	require.False(t, dup)
	require.NoError(t, err)

	ok, dup, err = l.Insert(0, Interval{15, 18})
	require.False(t, ok)
	require.True(t, dup)
	require.NoError(t, err)

	ok, dup, err = l.Insert(0, Interval{5, 9})
	require.True(t, ok)
	require.False(t, dup)
	require.NoError(t, err)

	// [9,11] touches [5,9] at 9 (adjacent, not overlapping) but partially
	// overlaps [10,20] without containment, so the rejection must name
	// [10,20] as the offending existing interval.
	ok, dup, err = l.Insert(0, Interval{9, 11})
	require.False(t, ok)
	require.False(t, dup)
	require.Error(t, err)
	var overlapErr *OverlapError
	require.ErrorAs(t, err, &overlapErr)
	require.Equal(t, Interval{10, 20}, overlapErr.Existing)
}

// TestAdjacentIntervalsAreNotOverlapping exercises the touching-endpoint
// case of key_cmp directly: intervals that share only a boundary point are
// adjacent, not overlapping, and both insert cleanly.
func TestAdjacentIntervalsAreNotOverlapping(t *testing.T) {
	l := newTestList()

	ok, _, err := l.Insert(0, Interval{5, 9})
	require.True(t, ok)
	require.NoError(t, err)

	ok, _, err = l.Insert(0, Interval{9, 11})
	require.True(t, ok)
	require.NoError(t, err)
}

func TestKeyCmpRelations(t *testing.T) {
	a := Interval{10, 20}
	require.Equal(t, relEqual, keyCmp(a, Interval{10, 20}))
	require.Equal(t, relEqual, keyCmp(a, Interval{12, 18}))
	require.Equal(t, relLeft, keyCmp(a, Interval{1, 5}))
	require.Equal(t, relRight, keyCmp(a, Interval{25, 30}))
	require.Equal(t, relOverlapError, keyCmp(a, Interval{5, 15}))
	require.Equal(t, relOverlapError, keyCmp(a, Interval{15, 25}))

	// Touching at a single endpoint is adjacency, not overlap.
	require.Equal(t, relLeft, keyCmp(a, Interval{1, 10}))
	require.Equal(t, relRight, keyCmp(a, Interval{20, 30}))
}

func TestRoundTrip(t *testing.T) {
	l := newTestList()

	_, found := l.Lookup(0, Interval{1, 1})
	require.False(t, found)

	ok, _, err := l.Insert(0, Interval{100, 200})
	require.True(t, ok)
	require.NoError(t, err)

	got, found := l.Lookup(0, Interval{150, 150})
	require.True(t, found)
	require.Equal(t, Interval{100, 200}, got)

	minKey, found := l.MinKey()
	require.True(t, found)
	require.Equal(t, Interval{100, 200}, minKey)

	ok, absent := l.Remove(0, Interval{150, 150})
	require.True(t, ok)
	require.False(t, absent)

	_, found = l.Lookup(0, Interval{150, 150})
	require.False(t, found)

	ok, absent = l.Remove(0, Interval{150, 150})
	require.False(t, ok)
	require.True(t, absent)
}

func TestRandomLevelsBounded(t *testing.T) {
	for i := 0; i < 10000; i++ {
		l := randomLevels()
		require.GreaterOrEqual(t, l, 1)
		require.LessOrEqual(t, l, MaxLevels)
	}
}

func TestHighWaterMonotonic(t *testing.T) {
	l := newTestList()
	prev := l.highWater.Load()
	for i := 0; i < 200; i++ {
		start := uint64(i * 10)
		ok, _, err := l.Insert(0, Interval{start, start + 5})
		require.True(t, ok)
		require.NoError(t, err)
		cur := l.highWater.Load()
		require.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
	require.LessOrEqual(t, prev, int32(MaxLevels))
}

// TestCountIncludesMarkedNodes exercises the preserved diagnostic quirk from
// spec.md §9: Count walks every level-0 link, including nodes marked for
// removal but not yet physically unlinked.
func TestCountIncludesMarkedNodes(t *testing.T) {
	l := newTestList()

	ok, _, err := l.Insert(0, Interval{1, 2})
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, 1, l.Count())

	ok, absent := l.Remove(0, Interval{1, 2})
	require.True(t, ok)
	require.False(t, absent)

	// Level 0 is marked-but-not-unlinked immediately after Remove returns,
	// by design (sl_remove's early return) — Count still sees it.
	require.Equal(t, 1, l.Count())

	// Lookup traverses with dontUnlink: it skips the marked node but leaves
	// it linked.
	_, found := l.Lookup(0, Interval{1, 2})
	require.False(t, found)
	require.Equal(t, 1, l.Count())

	// A subsequent traversal with assistUnlink physically removes it.
	ok, absent = l.Remove(0, Interval{1, 2})
	require.False(t, ok)
	require.True(t, absent)
	require.Equal(t, 0, l.Count())
}

// TestS5ConcurrentInsertRemove is spec.md §8 scenario S5: several threads
// hammering insert/remove over a small fixed key space; afterward removing
// every key must leave no node linked at level 0.
func TestS5ConcurrentInsertRemove(t *testing.T) {
	l := newTestList()

	const threads = 4
	const perThread = 1000
	const keySpace = 15

	intervals := make([]Interval, keySpace)
	for i := 0; i < keySpace; i++ {
		start := uint64(i * 100)
		intervals[i] = Interval{start, start + 50}
	}

	var grp errgroup.Group
	grp.SetLimit(threads)
	for tid := 0; tid < threads; tid++ {
		tid := tid
		grp.Go(func() error {
			for i := 0; i < perThread; i++ {
				iv := intervals[(tid+i)%keySpace]
				if (i+tid)%2 == 0 {
					l.Insert(tid, iv)
				} else {
					l.Remove(tid, iv)
				}
			}
			return nil
		})
	}
	require.NoError(t, grp.Wait())

	// Drain whatever remains so the list converges to a known state.
	for _, iv := range intervals {
		l.Remove(0, iv)
	}
	require.Equal(t, 0, l.Count())

	l.Destroy()
}

func TestMetricsSinkObservesCASRetries(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := lfmetrics.New(reg)
	l := New(hazard.NewDomain("skiplist-metrics", 16, Width))
	l.SetMetrics(m)

	const threads = 8
	intervals := make([]Interval, 20)
	for i := range intervals {
		intervals[i] = Interval{uint64(i * 100), uint64(i*100 + 50)}
	}

	var wg sync.WaitGroup
	wg.Add(threads)
	for tid := 0; tid < threads; tid++ {
		tid := tid
		go func() {
			defer wg.Done()
			for _, iv := range intervals {
				l.Insert(tid, iv)
			}
		}()
	}
	wg.Wait()

	require.Greater(t, testutil.ToFloat64(m.SkiplistCASRetryCounter("skiplist")), float64(0),
		"8 threads racing to insert the same 20 keys must contend on at least one CAS")
}

func TestConcurrentLookup(t *testing.T) {
	l := newTestList()
	const n = 200
	for i := 0; i < n; i++ {
		start := uint64(i * 10)
		ok, _, err := l.Insert(0, Interval{start, start + 5})
		require.True(t, ok)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for tid := 1; tid <= 8; tid++ {
		tid := tid
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < n; i++ {
				start := uint64(i * 10)
				_, found := l.Lookup(tid, Interval{start + 2, start + 2})
				require.True(t, found)
			}
		}()
	}
	wg.Wait()
}
