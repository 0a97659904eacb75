package segtable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLazySegmentAllocation(t *testing.T) {
	tb := New[int](16, 4)
	require.Nil(t, tb.Load(5))

	v := 42
	require.True(t, tb.CompareAndSwap(5, nil, &v))
	require.Equal(t, &v, tb.Load(5))

	// Neighbouring slot in the same segment is untouched.
	require.Nil(t, tb.Load(4))
}

func TestCompareAndSwapLoserFails(t *testing.T) {
	tb := New[int](16, 4)
	a, b := 1, 2
	require.True(t, tb.CompareAndSwap(0, nil, &a))
	require.False(t, tb.CompareAndSwap(0, nil, &b))
	require.Equal(t, &a, tb.Load(0))
}

func TestCap(t *testing.T) {
	tb := New[int](16, 4)
	require.Equal(t, 64, tb.Cap())
}
