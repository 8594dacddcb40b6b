// Package bufpool provides a pooled byte-buffer allocator for blob reads.
package bufpool

import "sync"

var pool = sync.Pool{
	New: func() interface{} {
		return make([]byte, 0, 4096)
	},
}

// Get returns a byte slice of exactly size bytes, reused from the pool when
// possible.
func Get(size int) []byte {
	buf := pool.Get().([]byte)
	if cap(buf) < size {
		return make([]byte, size, size*2)
	}
	return buf[:size]
}

// Release returns buf to the pool.
func Release(buf []byte) {
	//nolint:staticcheck // SA6002: slice descriptor copy is acceptable for sync.Pool
	pool.Put(buf[:0])
}
