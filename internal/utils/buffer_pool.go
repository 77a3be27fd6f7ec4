package utils

import "sync"

// poolBuffer wraps the slice so the pool stores pointers, not slice headers.
type poolBuffer struct {
	b []byte
}

// BufferPool hands out fixed-size byte buffers for copy loops, such as the
// download pump, without reallocating one per transfer.
type BufferPool struct {
	pool sync.Pool
	size int
}

// NewBufferPool creates a pool serving buffers of the given size.
func NewBufferPool(size int) *BufferPool {
	return &BufferPool{
		size: size,
		pool: sync.Pool{
			New: func() any {
				return &poolBuffer{b: make([]byte, size)}
			},
		},
	}
}

// Get returns a buffer of the pool's configured size.
func (p *BufferPool) Get() []byte {
	return p.pool.Get().(*poolBuffer).b[:p.size]
}

// Put returns a buffer to the pool. Buffers of a foreign size are dropped.
func (p *BufferPool) Put(buf []byte) {
	if cap(buf) == p.size {
		p.pool.Put(&poolBuffer{b: buf})
	}
}

// DefaultBufferPool serves the transfer paths with 32KB buffers.
var DefaultBufferPool = NewBufferPool(32 * 1024)
