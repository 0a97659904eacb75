// Package hashset implements the split-ordered hash set of spec.md §4.D: a
// resizable lock-free hash set layered over a shared, recursively-ordered
// linked list, following Shalev & Shavit.
//
// Grounded on original_source/src/hash_set.c (hs_init, bucket_list_init,
// reverse, make_ordinary_key, make_sentinel_key, initialize_bucket, hs_add,
// hs_contains, hs_remove), with the segmented main array adapted from the
// teacher's cache/segment_uint64_map.go sharding idea via internal/segtable.
package hashset

// lowMask and hiMask mirror the C source's MASK (0x00FFFFFF) and HI_MASK
// (0x80000000): keys are encoded in a 32-bit window. spec.md §9 flags this
// as tied to "the specific 32-bit layout" rather than the machine's natural
// width; it is preserved here verbatim per spec.md's instruction to keep
// the source's encoding behavior, not to silently "fix" it onto uint64.
const (
	lowMask uint32 = 0x00FFFFFF
	hiMask  uint32 = 0x80000000
)

// reverse32 reverses the bits of x, exactly original_source/src/hash_set.c's
// reverse().
func reverse32(x uint32) uint32 {
	var r uint32
	for i := 0; i < 32; i++ {
		r = (r << 1) | (x & 1)
		x >>= 1
	}
	return r
}

// encodeOrdinary turns a user key into the encoded key stored in the shared
// list: mask to the low W bits, set the high bit, then bit-reverse. The
// high bit survives reversal as the encoded value's low bit, so ordinary
// keys always sort after any sentinel with the same prefix (spec.md §4.D).
func encodeOrdinary(key uint64) uint32 {
	x := uint32(key)&lowMask | hiMask
	return reverse32(x)
}

// encodeSentinel turns a bucket index into its sentinel's encoded key: mask
// to the low W bits (no high bit), then reverse. The result is always even.
func encodeSentinel(bucket uint32) uint32 {
	x := bucket & lowMask
	return reverse32(x)
}

// isSentinel reports whether an encoded key belongs to a bucket sentinel
// rather than a user entry: spec.md §4.D, "is_sentinel(k) <=> (k & 1) == 0".
func isSentinel(encoded uint32) bool {
	return encoded&1 == 0
}

// parentIndex clears bucket's highest set bit, per spec.md §4.D's
// "parent(b) = b xor highest_set_bit(b)". Bucket 0 has no parent.
func parentIndex(bucket uint32) uint32 {
	if bucket == 0 {
		return 0
	}
	highest := uint32(1)
	for highest<<1 <= bucket {
		highest <<= 1
	}
	return bucket &^ highest
}
