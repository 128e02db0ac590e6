package capture

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/yok-tottii/EzCapture/internal/audio"
)

// bufferPool hands out accumulation buffers of one fixed capacity
type bufferPool struct {
	size int
	pool sync.Pool
}

func newBufferPool(size int) *bufferPool {
	p := &bufferPool{size: size}
	p.pool.New = func() any {
		buf := make([]byte, size)
		return &buf
	}
	return p
}

func (p *bufferPool) get() []byte {
	return *(p.pool.Get().(*[]byte))
}

func (p *bufferPool) put(buf []byte) {
	if cap(buf) != p.size {
		return
	}
	buf = buf[:p.size]
	p.pool.Put(&buf)
}

// Chunk is a reference-counted view over one flushed accumulation buffer.
//
// A Chunk starts with one reference owned by whoever receives it from
// Engine.Chunks. Every Retain must be matched by a Release; the backing
// memory goes back to the engine when the last reference is released and
// must not be touched afterwards.
//
// Capacity is the number of bytes flushed into the chunk. The logical
// length starts equal to it and belongs to the consumer, who may shrink it
// once with SetLen. The engine never reads it.
type Chunk struct {
	buf    []byte
	size   int
	n      int
	lenSet atomic.Bool
	refs   atomic.Int32
	pool   *bufferPool

	seq        uint64
	sessionID  uuid.UUID
	format     audio.Format
	capturedAt time.Time
}

// newChunk wraps the first size bytes of buf
func newChunk(buf []byte, size int, pool *bufferPool, seq uint64, sessionID uuid.UUID, format audio.Format) *Chunk {
	c := &Chunk{
		buf:        buf,
		size:       size,
		n:          size,
		pool:       pool,
		seq:        seq,
		sessionID:  sessionID,
		format:     format,
		capturedAt: time.Now(),
	}
	c.refs.Store(1)
	return c
}

// Bytes returns the captured bytes, Len() long. Valid until the last Release.
func (c *Chunk) Bytes() []byte {
	return c.buf[:c.n]
}

// Capacity returns the number of bytes flushed into the chunk
func (c *Chunk) Capacity() int {
	return c.size
}

// Len returns the logical length, Capacity unless SetLen changed it
func (c *Chunk) Len() int {
	return c.n
}

// SetLen sets the logical length within [0, Capacity]. It can be called once.
func (c *Chunk) SetLen(n int) error {
	if n < 0 || n > c.size {
		return fmt.Errorf("capture: chunk length %d outside [0, %d]", n, c.size)
	}
	if !c.lenSet.CompareAndSwap(false, true) {
		return ErrLengthSet
	}
	c.n = n
	return nil
}

// Seq returns the per-session sequence number, starting at 1
func (c *Chunk) Seq() uint64 {
	return c.seq
}

// SessionID identifies the capture session that produced the chunk
func (c *Chunk) SessionID() uuid.UUID {
	return c.sessionID
}

// Format returns the sample format of the bytes
func (c *Chunk) Format() audio.Format {
	return c.format
}

// Duration returns the playback time of Len bytes in the chunk format
func (c *Chunk) Duration() time.Duration {
	rate := c.format.BytesPerSecond()
	if rate <= 0 {
		return 0
	}
	return time.Duration(c.n) * time.Second / time.Duration(rate)
}

// CapturedAt returns the time the chunk was flushed
func (c *Chunk) CapturedAt() time.Time {
	return c.capturedAt
}

// Retain adds a reference. It panics on a chunk that was already fully released.
func (c *Chunk) Retain() {
	for {
		refs := c.refs.Load()
		if refs <= 0 {
			panic("capture: Retain on released chunk")
		}
		if c.refs.CompareAndSwap(refs, refs+1) {
			return
		}
	}
}

// Release drops a reference. It panics when called more often than the chunk was retained.
func (c *Chunk) Release() {
	refs := c.refs.Add(-1)
	switch {
	case refs < 0:
		panic("capture: chunk released too many times")
	case refs == 0:
		buf := c.buf
		c.buf = nil
		c.size = 0
		c.n = 0
		if c.pool != nil {
			c.pool.put(buf)
		}
	}
}
