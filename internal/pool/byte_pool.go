package pool

import (
	"bytes"
	"sync"

	"github.com/23skdu/vdbload/internal/metrics"
)

// maxPooledBuffer caps the capacity of buffers kept for reuse so one huge
// response does not pin its memory forever.
const maxPooledBuffer = 4 << 20

// BytePool pools bytes.Buffer instances for reading HTTP response bodies.
type BytePool struct {
	pool sync.Pool
}

// NewBytePool creates a new buffer pool.
func NewBytePool() *BytePool {
	return &BytePool{
		pool: sync.Pool{
			New: func() any {
				return new(bytes.Buffer)
			},
		},
	}
}

// Get retrieves a buffer from the pool.
// The buffer is guaranteed to be empty (Reset called).
func (p *BytePool) Get() *bytes.Buffer {
	metrics.BufferPoolOperations.WithLabelValues("get").Inc()
	return p.pool.Get().(*bytes.Buffer)
}

// Put returns a buffer to the pool after resetting it. Oversized buffers are
// dropped.
func (p *BytePool) Put(buf *bytes.Buffer) {
	metrics.BufferPoolOperations.WithLabelValues("put").Inc()
	if buf.Cap() > maxPooledBuffer {
		return
	}
	buf.Reset()
	p.pool.Put(buf)
}
