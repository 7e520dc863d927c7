package mjr

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

func samplePacket(seq uint16, ts uint32) []byte {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    111,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           0xdeadbeef,
		},
		Payload: []byte{1, 2, 3, 4},
	}
	b, err := pkt.Marshal()
	if err != nil {
		panic(err)
	}
	return b
}

func TestWriteAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir, MediumAudio, "opus", "rec-1-audio")
	require.NoError(t, err)

	var written [][]byte
	for i := 0; i < 10; i++ {
		pkt := samplePacket(uint16(1000+i), uint32(48000*i))
		written = append(written, pkt)
		require.NoError(t, w.Save(pkt))
	}
	require.NoError(t, w.Close())

	r, err := OpenReader(w.Path())
	require.NoError(t, err)
	defer r.Close()

	hdr := r.Header()
	require.False(t, hdr.Legacy)
	require.Equal(t, MediumAudio, hdr.Medium)
	require.Equal(t, "opus", hdr.Codec)
	require.NotZero(t, hdr.FirstFrame)

	f, err := os.Open(w.Path())
	require.NoError(t, err)
	defer f.Close()

	var got [][]byte
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		buf, err := ReadAt(f, rec.Offset, len(rec.Payload))
		require.NoError(t, err)
		got = append(got, buf)
	}

	require.Equal(t, written, got)
}

func TestOldFormatDegraded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "legacy.mjr")

	f, err := os.Create(path)
	require.NoError(t, err)

	writeLegacy := func(payload []byte) {
		buf := make([]byte, 8+2+len(payload))
		copy(buf, oldFormatTag)
		binary.BigEndian.PutUint16(buf[8:10], uint16(len(payload)))
		copy(buf[10:], payload)
		_, err := f.Write(buf)
		require.NoError(t, err)
	}

	writeLegacy([]byte("video"))
	writeLegacy(samplePacket(1, 1000))
	require.NoError(t, f.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	hdr := r.Header()
	require.True(t, hdr.Legacy)
	require.Equal(t, MediumVideo, hdr.Medium)
	require.Equal(t, "vp8", hdr.Codec)

	rec, err := r.Next()
	require.NoError(t, err)
	require.NotNil(t, rec)

	_, err = r.Next()
	require.Equal(t, io.EOF, err)
}

func TestTruncatedRecordIsParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.mjr")

	f, err := os.Create(path)
	require.NoError(t, err)
	// a tag and a length claiming more bytes than actually follow.
	buf := make([]byte, 8+2)
	copy(buf, newFormatTag)
	binary.BigEndian.PutUint16(buf[8:10], 100)
	_, err = f.Write(buf)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = OpenReader(path)
	require.ErrorIs(t, err, ErrShortRead)
}

func TestSkipsNonRTPRecords(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir, MediumVideo, "vp8", "rec-2-video")
	require.NoError(t, err)
	require.NoError(t, w.Save(samplePacket(1, 0)))
	require.NoError(t, w.Save([]byte{0x01, 0x02}))
	require.NoError(t, w.Save(samplePacket(2, 3000)))
	require.NoError(t, w.Close())

	r, err := OpenReader(w.Path())
	require.NoError(t, err)
	defer r.Close()

	count := 0
	for {
		_, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		count++
	}
	require.Equal(t, 2, count)
}
