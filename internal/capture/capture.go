// Package capture implements the capturer side of a session: the per-medium
// MJR writers (component C3) and the live publish sink (component C4) that
// every incoming RTP packet, after simulcast filtering, is fanned out to.
package capture

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/kestrelmedia/recordplay/internal/asyncwriter"
	"github.com/kestrelmedia/recordplay/internal/logger"
	"github.com/kestrelmedia/recordplay/internal/mjr"
)

// Sink is the external collaborator a capturer publishes live RTP to
// alongside disk capture (for example an RTMP relay or a second WebRTC
// fan-out). It is opaque to this package: open/push/close is the entire
// contract.
type Sink interface {
	Open() error
	Push(medium mjr.Medium, payload []byte) error
	Close() error
}

// Writer fans incoming RTP packets out to up to two MJR files (audio,
// video) and one live Sink. Each incoming packet after simulcast filtering
// is passed to both; a failure of either must not abort the other, and
// disk/sink I/O never blocks the caller (it runs on a single background
// worker queue per spec.md §4.3/§5).
type Writer struct {
	dir  string
	name string
	sink Sink

	async  *asyncwriter.Writer
	logger logger.Writer

	mu          sync.Mutex
	audio       *mjr.Writer
	video       *mjr.Writer
	sinkOpened  bool
	sinkFailed  bool
	audioFailed bool
	videoFailed bool
}

// New allocates a Writer. dir/name determine the on-disk file names
// (name+"-audio.mjr", name+"-video.mjr"); sink may be nil if the session
// has no live publish destination.
func New(dir, name string, sink Sink, writeQueueSize int, parent logger.Writer) *Writer {
	w := &Writer{
		dir:    dir,
		name:   name,
		sink:   sink,
		logger: parent,
	}
	w.async = asyncwriter.New(writeQueueSize, parent)
	w.async.Start()
	return w
}

// Push enqueues one RTP packet for the given medium/codec. It never blocks
// on disk or sink I/O: the actual writes happen on the background worker.
func (w *Writer) Push(medium mjr.Medium, codec string, payload []byte) {
	w.async.Push(func() error {
		w.writeToDisk(medium, codec, payload)
		w.writeToSink(medium, payload)
		return nil
	})
}

func (w *Writer) writeToDisk(medium mjr.Medium, codec string, payload []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()

	writer, failed := w.writerFor(medium)
	if failed {
		return
	}

	if writer == nil {
		var err error
		suffix := medium.String()
		writer, err = mjr.Open(w.dir, medium, codec, fmt.Sprintf("%s-%s", w.name, suffix))
		if err != nil {
			w.logger.Log(logger.Error, "capture: open %s writer: %s", suffix, err)
			w.markFailed(medium)
			return
		}
		w.setWriter(medium, writer)
	}

	if err := writer.Save(payload); err != nil {
		w.logger.Log(logger.Error, "capture: write %s frame: %s", medium.String(), err)
		w.markFailed(medium)
	}
}

func (w *Writer) writeToSink(medium mjr.Medium, payload []byte) {
	if w.sink == nil {
		return
	}

	w.mu.Lock()
	if w.sinkFailed {
		w.mu.Unlock()
		return
	}
	opened := w.sinkOpened
	w.mu.Unlock()

	if !opened {
		if err := w.sink.Open(); err != nil {
			w.logger.Log(logger.Error, "capture: open sink: %s", err)
			w.mu.Lock()
			w.sinkFailed = true
			w.mu.Unlock()
			return
		}
		w.mu.Lock()
		w.sinkOpened = true
		w.mu.Unlock()
	}

	if err := w.sink.Push(medium, payload); err != nil {
		w.logger.Log(logger.Error, "capture: sink push: %s", err)
		w.mu.Lock()
		w.sinkFailed = true
		w.mu.Unlock()
	}
}

// writerFor must be called with mu held.
func (w *Writer) writerFor(medium mjr.Medium) (*mjr.Writer, bool) {
	switch medium {
	case mjr.MediumAudio:
		return w.audio, w.audioFailed
	default:
		return w.video, w.videoFailed
	}
}

// setWriter must be called with mu held.
func (w *Writer) setWriter(medium mjr.Medium, writer *mjr.Writer) {
	switch medium {
	case mjr.MediumAudio:
		w.audio = writer
	default:
		w.video = writer
	}
}

// markFailed must be called with mu held. Once a medium's writer has
// failed it stays failed for the lifetime of the session rather than
// retrying (and potentially truncating) on every subsequent packet.
func (w *Writer) markFailed(medium mjr.Medium) {
	switch medium {
	case mjr.MediumAudio:
		w.audioFailed = true
	default:
		w.videoFailed = true
	}
}

// Paths returns the on-disk paths opened so far (empty string if that
// medium never received a packet).
func (w *Writer) Paths() (audio, video string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.audio != nil {
		audio = w.audio.Path()
	}
	if w.video != nil {
		video = w.video.Path()
	}
	return
}

// Close flushes the queue and closes whichever writers/sink were opened.
func (w *Writer) Close() error {
	w.async.Stop()

	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	if w.audio != nil {
		if err := w.audio.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if w.video != nil {
		if err := w.video.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if w.sink != nil && w.sinkOpened {
		if err := w.sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// FullPath is a small helper mirroring the teacher's path-join convention
// (see internal/record.Agent) for callers that want an absolute path ahead
// of opening.
func FullPath(dir, name, suffix string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.mjr", name, suffix))
}
