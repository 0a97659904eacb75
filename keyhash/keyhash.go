// Package keyhash turns arbitrary byte and string keys into the uint64
// keys that llist, hashset and skiplist operate on, for callers who don't
// already have a natural integer key.
//
// Grounded on the teacher's cache/key.go: a pooled, stack-sized scratch
// buffer feeding github.com/cespare/xxhash/v2, generalized from DNS
// questions to plain bytes/strings.
package keyhash

import (
	"sync"
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

type scratch struct {
	buf [256]byte
}

var scratchPool = sync.Pool{
	New: func() any { return new(scratch) },
}

// Bytes hashes b to a uint64 key, using a pooled buffer for inputs small
// enough to avoid a heap allocation.
func Bytes(b []byte) uint64 {
	if len(b) <= len(scratch{}.buf) {
		s := scratchPool.Get().(*scratch)
		n := copy(s.buf[:], b)
		h := xxhash.Sum64(s.buf[:n])
		scratchPool.Put(s)
		return h
	}
	return xxhash.Sum64(b)
}

// String hashes s to a uint64 key without allocating, via an unsafe
// string-to-bytes reinterpretation local to this call.
func String(s string) uint64 {
	return Bytes(unsafe.Slice(unsafe.StringData(s), len(s)))
}

// Fields hashes the concatenation of several byte slices as a single key,
// for composite keys (e.g. a namespace plus a name) without requiring the
// caller to allocate a joined buffer.
func Fields(fields ...[]byte) uint64 {
	total := 0
	for _, f := range fields {
		total += len(f)
	}
	if total <= len(scratch{}.buf) {
		s := scratchPool.Get().(*scratch)
		buf := s.buf[:0]
		for _, f := range fields {
			buf = append(buf, f...)
		}
		h := xxhash.Sum64(buf)
		scratchPool.Put(s)
		return h
	}
	buf := make([]byte, 0, total)
	for _, f := range fields {
		buf = append(buf, f...)
	}
	return xxhash.Sum64(buf)
}
