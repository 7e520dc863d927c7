package mjr

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Header is what OpenReader learns from a file's first record, from either
// generation.
type Header struct {
	Medium     Medium
	Codec      string
	Created    int64
	FirstFrame int64
	// Legacy is true when the file was written in the old MEETECHO-tagged
	// format, which carries no codec field; Codec is then a guess (Opus
	// for audio, VP8 for video) per spec.md §9, and callers should surface
	// that fact rather than trust it blindly.
	Legacy bool
}

// Record is one RTP-bearing record read back from a file.
type Record struct {
	// Offset is the byte offset, within the file, of the first byte of
	// Payload -- what spec.md's frame packet calls "offset".
	Offset  int64
	Payload []byte
}

// Reader sequentially parses an MJR file.
type Reader struct {
	f      *os.File
	header Header
	tag    string // the record tag this file's body records all share
}

func readExactly(f *os.File, n int) ([]byte, error) {
	buf := make([]byte, n)
	_, err := io.ReadFull(f, buf)
	if err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, ErrShortRead
		}
		return nil, err
	}
	return buf, nil
}

// readRecordRaw reads one tagged record. A clean io.EOF (nothing at all
// read for the tag) propagates as io.EOF so callers can tell "no more
// records" apart from a truncated one; any other short read is
// ErrShortRead, a parse error per spec.md §4.1/§7.
func readRecordRaw(f *os.File) (tag string, payload []byte, offset int64, err error) {
	tagBuf, err := readExactly(f, 8)
	if err != nil {
		return "", nil, 0, err
	}

	lenBuf, err := readExactly(f, 2)
	if err != nil {
		if err == io.EOF {
			err = ErrShortRead
		}
		return "", nil, 0, err
	}
	n := binary.BigEndian.Uint16(lenBuf)

	off, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", nil, 0, err
	}

	payload, err = readExactly(f, int(n))
	if err != nil {
		if err == io.EOF {
			err = ErrShortRead
		}
		return "", nil, 0, err
	}

	return string(tagBuf), payload, off, nil
}

// OpenReader opens an MJR file and parses its first record.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	tag, payload, _, err := readRecordRaw(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	if len(tag) != 8 || tag[0] != 'M' {
		f.Close()
		return nil, ErrBadTag
	}

	r := &Reader{f: f, tag: tag}

	switch tag[1] {
	case 'J':
		var info InfoHeader
		if err := json.Unmarshal(payload, &info); err != nil {
			f.Close()
			return nil, fmt.Errorf("mjr: decode info header: %w", err)
		}

		if info.Type == "" || info.Codec == "" {
			f.Close()
			return nil, ErrBadInfoHeader
		}

		medium, ok := mediumFromTypeTag(info.Type)
		if !ok {
			f.Close()
			return nil, ErrUnknownMedium
		}

		r.header = Header{
			Medium:     medium,
			Codec:      info.Codec,
			Created:    info.Created,
			FirstFrame: info.FirstFrame,
		}

	case 'E':
		if len(payload) < 1 {
			f.Close()
			return nil, ErrBadInfoHeader
		}

		var medium Medium
		var codec string

		switch payload[0] {
		case 'a':
			medium = MediumAudio
			codec = "opus"
		case 'v':
			medium = MediumVideo
			codec = "vp8"
		default:
			f.Close()
			return nil, ErrUnknownMedium
		}

		r.header = Header{
			Medium: medium,
			Codec:  codec,
			Legacy: true,
		}

	default:
		f.Close()
		return nil, ErrBadTag
	}

	return r, nil
}

// Header returns the parsed info header.
func (r *Reader) Header() Header {
	return r.header
}

// Next reads the following record. Records shorter than 12 bytes are not
// RTP (spec.md §4.1) and are skipped transparently; Next keeps reading
// until it finds an RTP-sized record or reaches EOF.
func (r *Reader) Next() (*Record, error) {
	for {
		tag, payload, offset, err := readRecordRaw(r.f)
		if err != nil {
			return nil, err
		}

		if tag != r.tag {
			return nil, ErrBadTag
		}

		if len(payload) < 12 {
			continue
		}

		return &Record{Offset: offset, Payload: payload}, nil
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}

// ReadAt reads exactly n bytes at the given file offset, for the replay
// pacer's re-emission path.
func ReadAt(f *os.File, offset int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	_, err := f.ReadAt(buf, offset)
	if err != nil {
		return nil, err
	}
	return buf, nil
}
