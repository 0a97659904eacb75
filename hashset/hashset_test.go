package hashset

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/semihalev/lfindex/hazard"
	"github.com/semihalev/lfindex/lfmetrics"
)

func newTestSet(opts ...Option) *Set {
	return New(hazard.NewDomain("hashset-test", 32, Width), opts...)
}

// TestS2HashSetGrowth is spec.md §8 scenario S2.
func TestS2HashSetGrowth(t *testing.T) {
	s := newTestSet(WithInitialBuckets(2), WithLoadFactor(0.75))

	ok, dup := s.Add(0, 0)
	require.True(t, ok)
	require.False(t, dup)
	require.EqualValues(t, 1, s.setSize.Load())
	require.EqualValues(t, 2, s.capacity.Load())

	ok, dup = s.Add(0, 1)
	require.True(t, ok)
	require.False(t, dup)
	require.EqualValues(t, 2, s.setSize.Load())
	require.EqualValues(t, 4, s.capacity.Load(), "capacity must double once load factor is reached")

	ok, dup = s.Add(0, 2)
	require.True(t, ok)
	require.False(t, dup)

	require.True(t, s.Contains(0, 0))
	require.True(t, s.Contains(0, 1))
	require.True(t, s.Contains(0, 2))

	ok, dup = s.Add(0, 0)
	require.False(t, ok)
	require.True(t, dup)
}

// TestS3RecursiveBucketInit is spec.md §8 scenario S3.
func TestS3RecursiveBucketInit(t *testing.T) {
	s := newTestSet(WithInitialBuckets(8))

	require.False(t, s.Contains(0, 13)) // bucket 5

	require.NotNil(t, s.table.Load(0))
	require.NotNil(t, s.table.Load(1))
	require.NotNil(t, s.table.Load(5))
}

func TestParentIndexChain(t *testing.T) {
	require.EqualValues(t, 1, parentIndex(5))
	require.EqualValues(t, 0, parentIndex(1))
	require.EqualValues(t, 0, parentIndex(0))
	require.EqualValues(t, 0, parentIndex(2))
	require.EqualValues(t, 2, parentIndex(6))
}

func TestEncodingSentinelVsOrdinary(t *testing.T) {
	for b := uint32(0); b < 64; b++ {
		require.True(t, isSentinel(encodeSentinel(b)), "bucket %d sentinel must be even", b)
	}
	for k := uint64(0); k < 64; k++ {
		require.False(t, isSentinel(encodeOrdinary(k)), "ordinary key %d must be odd", k)
	}
}

func TestRoundTrip(t *testing.T) {
	s := newTestSet()
	require.False(t, s.Contains(0, 99))

	ok, _ := s.Add(0, 99)
	require.True(t, ok)
	require.True(t, s.Contains(0, 99))

	ok, absent := s.Remove(0, 99)
	require.True(t, ok)
	require.False(t, absent)
	require.False(t, s.Contains(0, 99))

	ok, absent = s.Remove(0, 99)
	require.False(t, ok)
	require.True(t, absent)
}

// TestRemoveOnNeverMaterializedBucket exercises the preserved quirk from
// spec.md §9: removing from a bucket that was never materialized still
// succeeds harmlessly (the bucket gets materialized, the key is absent).
func TestRemoveOnNeverMaterializedBucket(t *testing.T) {
	s := newTestSet(WithInitialBuckets(64))
	ok, absent := s.Remove(0, 12345)
	require.False(t, ok)
	require.True(t, absent)
	require.NotNil(t, s.table.Load(int(bucketOf(12345, 64))))
}

func TestMetricsSinkObservesResizeAndMaterialization(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := lfmetrics.New(reg)
	s := New(hazard.NewDomain("hashset-metrics", 8, Width), WithInitialBuckets(2), WithMetrics(m))

	ok, _ := s.Add(0, 0)
	require.True(t, ok)
	ok, _ = s.Add(0, 1)
	require.True(t, ok)

	require.Equal(t, float64(1), testutil.ToFloat64(m.HashsetResizesCounter("hashset")))
	require.Greater(t, testutil.ToFloat64(m.HashsetBucketsCounter()), float64(0))
}

func TestConcurrentAddContains(t *testing.T) {
	s := newTestSet(WithInitialBuckets(4))

	const threads = 8
	const perThread = 300

	var wg sync.WaitGroup
	wg.Add(threads)
	for tid := 0; tid < threads; tid++ {
		tid := tid
		go func() {
			defer wg.Done()
			base := uint64(tid * perThread)
			for i := uint64(0); i < perThread; i++ {
				s.Add(tid, base+i)
			}
		}()
	}
	wg.Wait()

	for tid := 0; tid < threads; tid++ {
		base := uint64(tid * perThread)
		for i := uint64(0); i < perThread; i++ {
			require.True(t, s.Contains(tid, base+i))
		}
	}
	require.EqualValues(t, threads*perThread, s.setSize.Load())
}
