package netbuf

import (
	"fmt"

	"firestige.xyz/upflow/internal/core"
)

// Pool hands out equally sized reusable buffers. Acquire removes a
// buffer from the free list; the buffer returns to the list when the
// last view referencing it is released.
//
// The pool is not safe for concurrent use. A multi-threaded
// deployment runs one pool per processing thread.
type Pool struct {
	free    []*backing
	bufSize int
	total   int
}

// NewPool creates a pool of count buffers of size bytes each.
func NewPool(count, size int) *Pool {
	p := &Pool{
		free:    make([]*backing, 0, count),
		bufSize: size,
		total:   count,
	}
	for i := 0; i < count; i++ {
		p.free = append(p.free, &backing{data: make([]byte, size), pool: p})
	}
	return p
}

// Acquire returns a writable view over a whole free buffer. It never
// blocks; when no buffer is free it fails immediately.
func (p *Pool) Acquire() (WritableView, error) {
	if len(p.free) == 0 {
		return WritableView{}, fmt.Errorf("acquire: %w", core.ErrPoolExhausted)
	}
	b := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	b.refs = 1
	return WritableView{View: View{b: b, off: 0, n: len(b.data)}}, nil
}

// FreeCount returns the number of buffers currently on the free list.
func (p *Pool) FreeCount() int { return len(p.free) }

// Size returns the total number of buffers owned by the pool.
func (p *Pool) Size() int { return p.total }

// BufferSize returns the capacity of each buffer.
func (p *Pool) BufferSize() int { return p.bufSize }

func (p *Pool) put(b *backing) {
	b.data = b.data[:cap(b.data)]
	p.free = append(p.free, b)
}
