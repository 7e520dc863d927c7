package frameindex

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"

	"github.com/kestrelmedia/recordplay/internal/mjr"
)

func writeCapture(t *testing.T, packets []struct {
	seq uint16
	ts  uint32
}) string {
	t.Helper()
	dir := t.TempDir()

	w, err := mjr.Open(dir, mjr.MediumVideo, "vp8", "rec-x-video")
	require.NoError(t, err)

	for _, p := range packets {
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    100,
				SequenceNumber: p.seq,
				Timestamp:      p.ts,
				SSRC:           1,
			},
			Payload: []byte{9, 9, 9, 9},
		}
		b, err := pkt.Marshal()
		require.NoError(t, err)
		require.NoError(t, w.Save(b))
	}
	require.NoError(t, w.Close())

	return w.Path()
}

func TestBuildOrdersByTimestampThenSeq(t *testing.T) {
	path := writeCapture(t, []struct {
		seq uint16
		ts  uint32
	}{
		{seq: 3, ts: 3000},
		{seq: 1, ts: 1000},
		{seq: 2, ts: 2000},
		{seq: 4, ts: 2000}, // fragmented frame sharing ts with seq 2
	})

	list, _, err := Build(path)
	require.NoError(t, err)
	require.Equal(t, 4, list.Count)

	var order []uint16
	for n := list.Head; n != nil; n = n.Next {
		order = append(order, n.Seq)
	}
	require.Equal(t, []uint16{1, 2, 4, 3}, order)
}

func TestBuildHandlesTimestampWrap(t *testing.T) {
	// pre-wrap packets with large timestamps, then a reset down near zero.
	path := writeCapture(t, []struct {
		seq uint16
		ts  uint32
	}{
		{seq: 1, ts: 4_000_000_000},
		{seq: 2, ts: 4_000_050_000},
		{seq: 3, ts: 100}, // wraps
		{seq: 4, ts: 4100},
	})

	list, _, err := Build(path)
	require.NoError(t, err)

	var order []uint16
	for n := list.Head; n != nil; n = n.Next {
		order = append(order, n.Seq)
	}
	// pre-wrap packets (1,2) must sort before post-wrap packets (3,4).
	require.Equal(t, []uint16{1, 2, 3, 4}, order)
}

func TestBuildTiesBreakOnWrapAwareSequence(t *testing.T) {
	path := writeCapture(t, []struct {
		seq uint16
		ts  uint32
	}{
		{seq: 65530, ts: 1000},
		{seq: 5, ts: 1000}, // seq wrapped within same timestamp
	})

	list, _, err := Build(path)
	require.NoError(t, err)

	var order []uint16
	for n := list.Head; n != nil; n = n.Next {
		order = append(order, n.Seq)
	}
	require.Equal(t, []uint16{65530, 5}, order)
}

func TestSeqLess(t *testing.T) {
	require.True(t, seqLess(1, 2))
	require.False(t, seqLess(2, 1))
	require.True(t, seqLess(65530, 5))
	require.False(t, seqLess(5, 65530))
}
