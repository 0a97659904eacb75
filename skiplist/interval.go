// Package skiplist implements the lock-free skip list of spec.md §4.E: a
// multi-level variant of the Harris-Michael list over interval keys, with
// per-level unlink and reference-counted node retirement.
//
// Grounded on original_source/src/skiplist.c (find_preds, sl_insert,
// sl_remove, sl_lookup, random_levels, key_cmp) and original_source/src/hp.c
// (the per-level hazard-pointer table this package shares the hazard
// package's Domain type with, parametrized by width per spec.md §9).
package skiplist

import "fmt"

// Interval is a closed key range [Start, End]; Start must be <= End.
type Interval struct {
	Start, End uint64
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%d,%d]", iv.Start, iv.End)
}

// relation is the result of comparing an existing node's interval against a
// query interval, per spec.md §4.E's key_cmp.
type relation int

const (
	relEqual relation = iota
	relLeft
	relRight
	relOverlapError
)

// keyCmp compares node's interval a against query b, exactly
// original_source/src/skiplist.h's key_cmp: EQUAL if b is contained in a,
// LEFT if b lies at or left of a (b.End <= a.Start), RIGHT if b lies at or
// right of a (b.Start >= a.End) — touching intervals are adjacent, not
// overlapping — otherwise an overlap error (b and a partially overlap
// without containment).
func keyCmp(a, b Interval) relation {
	if a.Start <= b.Start && b.End <= a.End {
		return relEqual
	}
	if b.End <= a.Start {
		return relLeft
	}
	if b.Start >= a.End {
		return relRight
	}
	return relOverlapError
}
