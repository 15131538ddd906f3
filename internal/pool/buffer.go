package pool

import (
	"sort"
	"sync"
)

const (
	// SmallBufferSize fits test request bodies and identifier samples (64KB)
	SmallBufferSize = 64 * 1024
	// MediumBufferSize fits a default sized chunk (1MB)
	MediumBufferSize = 1024 * 1024
	// LargeBufferSize fits a merged final chunk or a multipart body (4MB)
	LargeBufferSize = 4 * 1024 * 1024
)

// BufferPool manages reusable buffers of a fixed set of size classes.
type BufferPool struct {
	sizes []int
	pools []*sync.Pool
}

// NewBufferPool creates a pool with the given size classes.
// Without arguments the small, medium and large classes are used.
func NewBufferPool(sizes ...int) *BufferPool {
	if len(sizes) == 0 {
		sizes = []int{SmallBufferSize, MediumBufferSize, LargeBufferSize}
	}
	sorted := append([]int(nil), sizes...)
	sort.Ints(sorted)

	bp := &BufferPool{sizes: sorted, pools: make([]*sync.Pool, len(sorted))}
	for i, size := range sorted {
		bp.pools[i] = &sync.Pool{
			New: func() any {
				buf := make([]byte, 0, size)
				return &buf
			},
		}
	}
	return bp
}

// Get returns an empty buffer with capacity for at least size bytes.
// The caller should hand it back with Put once it is no longer referenced.
func (bp *BufferPool) Get(size int) []byte {
	for i, class := range bp.sizes {
		if size <= class {
			bufPtr := bp.pools[i].Get().(*[]byte)
			return (*bufPtr)[:0]
		}
	}
	// Larger than every class; not pooled.
	return make([]byte, 0, size)
}

// Put returns a buffer to the class matching its capacity.
// Buffers of any other capacity are dropped.
func (bp *BufferPool) Put(buf []byte) {
	capacity := cap(buf)
	for i, class := range bp.sizes {
		if capacity == class {
			buf = buf[:0]
			bp.pools[i].Put(&buf)
			return
		}
	}
}

// Classes returns the size classes served by the pool.
func (bp *BufferPool) Classes() []int {
	return append([]int(nil), bp.sizes...)
}

var globalBufferPool = NewBufferPool()

// Get returns a buffer from the shared pool.
func Get(size int) []byte {
	return globalBufferPool.Get(size)
}

// Put returns a buffer to the shared pool.
func Put(buf []byte) {
	globalBufferPool.Put(buf)
}
