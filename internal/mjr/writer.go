package mjr

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Writer appends RTP packets to a single MJR file. It is the component the
// spec calls C1's writer contract: open/save/close, with the info header
// lazily emitted on the first Save so that "u" (first-frame time) can be
// the genuine timestamp rather than a copy of the creation time.
//
// Save and Close are serialized by the Writer's own mutex, so a Save that
// races a Close either completes first or fails on the closed file.
type Writer struct {
	medium Medium
	codec  string
	path   string

	mu          sync.Mutex
	f           *os.File
	wroteHeader bool
	created     time.Time
}

// Open creates a new MJR file named "<name>.mjr" inside dir. The file is
// created truncated; MJR files are per-capture, not appended across runs.
func Open(dir string, medium Medium, codec string, name string) (*Writer, error) {
	path := filepath.Join(dir, name+".mjr")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("mjr: open %s: %w", path, err)
	}

	return &Writer{
		medium:  medium,
		codec:   codec,
		path:    path,
		f:       f,
		created: time.Now(),
	}, nil
}

// Path returns the on-disk path of the file.
func (w *Writer) Path() string {
	return w.path
}

func writeRecord(f *os.File, tag string, payload []byte) error {
	if len(payload) > 0xffff {
		return fmt.Errorf("mjr: record too large (%d bytes)", len(payload))
	}

	buf := make([]byte, 8+2+len(payload))
	copy(buf, tag)
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(payload)))
	copy(buf[10:], payload)

	_, err := f.Write(buf)
	return err
}

// Save appends one raw RTP packet (header + payload, exactly as received
// off the wire) to the file. On the first call it first emits the info
// header.
func (w *Writer) Save(rtpPacket []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.wroteHeader {
		info := InfoHeader{
			Type:       typeTagFromMedium(w.medium),
			Codec:      w.codec,
			Created:    w.created.UnixMicro(),
			FirstFrame: time.Now().UnixMicro(),
		}

		payload, err := json.Marshal(info)
		if err != nil {
			return fmt.Errorf("mjr: marshal info header: %w", err)
		}

		if err := writeRecord(w.f, newFormatTag, payload); err != nil {
			return fmt.Errorf("mjr: write info header: %w", err)
		}

		w.wroteHeader = true
	}

	return writeRecord(w.f, newFormatTag, rtpPacket)
}

// Close flushes and closes the underlying file. It is idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return nil
	}

	err := w.f.Close()
	w.f = nil
	return err
}
