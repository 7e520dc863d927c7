// Package asyncwriter contains an asynchronous, bounded work queue served
// by a single goroutine. It backs both per-stream disk writers (so a slow
// write never blocks the RTP ingest callback) and the request dispatcher's
// single worker for asynchronous verbs.
package asyncwriter

import (
	"fmt"

	"github.com/kestrelmedia/recordplay/internal/logger"
)

// Writer is an asynchronous, single-consumer work queue.
type Writer struct {
	writeErrLogger logger.Writer
	buffer         *ringBuffer

	// out
	err chan error
}

// New allocates a Writer with the given queue capacity.
func New(
	queueSize int,
	parent logger.Writer,
) *Writer {
	return &Writer{
		writeErrLogger: logger.NewLimitedLogger(parent),
		buffer:         newRingBuffer(queueSize),
		err:            make(chan error),
	}
}

// Start starts the worker goroutine.
func (w *Writer) Start() {
	go w.run()
}

// Stop stops the worker goroutine and waits for it to exit.
func (w *Writer) Stop() {
	w.buffer.Close()
	<-w.err
}

// Error returns a channel that receives the error that terminated the worker.
func (w *Writer) Error() chan error {
	return w.err
}

func (w *Writer) run() {
	w.err <- w.runInner()
	close(w.err)
}

func (w *Writer) runInner() error {
	for {
		cb, ok := w.buffer.Pull()
		if !ok {
			return fmt.Errorf("terminated")
		}

		err := cb()
		if err != nil {
			return err
		}
	}
}

// Push appends a callback to the queue. If the queue is full, the callback
// is dropped and a rate-limited warning is logged.
func (w *Writer) Push(cb func() error) {
	ok := w.buffer.Push(cb)
	if !ok {
		w.writeErrLogger.Log(logger.Warn, "write queue is full")
	}
}
