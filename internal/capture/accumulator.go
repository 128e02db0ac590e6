package capture

// accumulator folds pulled blocks into a fixed-capacity buffer.
// It is owned by the capture goroutine.
type accumulator struct {
	buf  []byte
	fill int
	pool *bufferPool
}

func newAccumulator(pool *bufferPool) *accumulator {
	return &accumulator{buf: pool.get(), pool: pool}
}

// write appends data, handing full buffers to emit first.
//
// When data does not fit in the free space the buffered bytes are emitted
// and the buffer starts over. A block larger than the whole capacity is
// split into full-capacity emits and the remainder stays buffered, so every
// emitted length is at most the capacity.
func (a *accumulator) write(data []byte, emit func(buf []byte, n int)) {
	capacity := len(a.buf)
	if capacity-a.fill < len(data) {
		a.flush(emit)
	}
	for len(data) > capacity {
		copy(a.buf, data[:capacity])
		a.fill = capacity
		a.flush(emit)
		data = data[capacity:]
	}
	a.fill += copy(a.buf[a.fill:], data)
}

// flush emits the buffered bytes, if any, and takes a fresh buffer.
// Ownership of the old buffer moves to emit.
func (a *accumulator) flush(emit func(buf []byte, n int)) {
	if a.fill == 0 {
		return
	}
	buf, n := a.buf, a.fill
	a.buf = a.pool.get()
	a.fill = 0
	emit(buf, n)
}

// discard drops the unflushed tail and returns how many bytes were lost
func (a *accumulator) discard() int {
	tail := a.fill
	a.fill = 0
	if a.buf != nil {
		a.pool.put(a.buf)
		a.buf = nil
	}
	return tail
}
