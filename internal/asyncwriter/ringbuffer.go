package asyncwriter

import "sync"

// ringBuffer is a bounded, closeable FIFO queue of callbacks. It plays the
// role gortsplib's pkg/ringbuffer plays in the teacher's asyncwriter: a
// single-producer/single-consumer buffer that Push never blocks on (it
// drops and reports false when full) and whose Pull blocks until an item
// is available or the buffer is closed.
type ringBuffer struct {
	mutex  sync.Mutex
	cond   *sync.Cond
	queue  []func() error
	size   int
	closed bool
}

func newRingBuffer(size int) *ringBuffer {
	rb := &ringBuffer{size: size}
	rb.cond = sync.NewCond(&rb.mutex)
	return rb
}

// Push appends an item, returning false if the buffer is full or closed.
func (rb *ringBuffer) Push(cb func() error) bool {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	if rb.closed || len(rb.queue) >= rb.size {
		return false
	}

	rb.queue = append(rb.queue, cb)
	rb.cond.Signal()
	return true
}

// Pull blocks until an item is available, returning false once the buffer
// has been closed and drained.
func (rb *ringBuffer) Pull() (func() error, bool) {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	for len(rb.queue) == 0 && !rb.closed {
		rb.cond.Wait()
	}

	if len(rb.queue) == 0 {
		return nil, false
	}

	cb := rb.queue[0]
	rb.queue = rb.queue[1:]
	return cb, true
}

// Close marks the buffer closed; pending items can still be pulled.
func (rb *ringBuffer) Close() {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	rb.closed = true
	rb.cond.Broadcast()
}
