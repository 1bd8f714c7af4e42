// Package pool provides buffer pooling for the per-cell hot path: the
// relay's XOR accumulation buffers are all fixed-size, so reusing them
// avoids one allocation per contribution per round. The keystream layer
// allocates its own scratch cells and does not use this pool.
package pool

import (
	"sync"
)

// BufferPool provides a pool of byte slices for reuse
type BufferPool struct {
	pool sync.Pool
	size int
}

// NewBufferPool creates a new buffer pool with the specified buffer size
func NewBufferPool(size int) *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		},
		size: size,
	}
}

// Get retrieves a buffer from the pool
func (p *BufferPool) Get() []byte {
	obj := p.pool.Get()
	bufPtr, ok := obj.(*[]byte)
	if !ok {
		buf := make([]byte, p.size)
		return buf
	}
	return (*bufPtr)[:p.size]
}

// GetZeroed retrieves a buffer from the pool with every byte cleared,
// the state a fresh XOR accumulation buffer needs.
func (p *BufferPool) GetZeroed() []byte {
	buf := p.Get()
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

// Put returns a buffer to the pool
func (p *BufferPool) Put(buf []byte) {
	if cap(buf) < p.size {
		// Don't pool buffers that are too small
		return
	}
	buf = buf[:p.size]
	p.pool.Put(&buf)
}

// Size returns the fixed buffer size this pool hands out.
func (p *BufferPool) Size() int { return p.size }
