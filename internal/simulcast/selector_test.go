package simulcast

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

func pkt(ssrc uint32, seq uint16, ts uint32, payload []byte) *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    100,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           ssrc,
		},
		Payload: payload,
	}
}

func vp8Payload(tid int, body ...byte) []byte {
	p := []byte{0x80, 0x20, byte(tid) << 6}
	return append(p, body...)
}

func TestNoLayersPassesEverythingThroughWithStableSSRC(t *testing.T) {
	sel := New(nil, 0xaaaaaaaa, nil)

	out, keep := sel.Process(pkt(1, 1, 1000, []byte{1, 2}), "opus")
	require.True(t, keep)
	require.Equal(t, uint32(0xaaaaaaaa), out.SSRC)

	out2, keep2 := sel.Process(pkt(1, 2, 2000, []byte{1, 2}), "opus")
	require.True(t, keep2)
	require.Equal(t, uint16(2), out2.SequenceNumber)
}

func TestOnlyTargetSubstreamReachesOutput(t *testing.T) {
	layers := []Layer{{SSRC: 100}, {SSRC: 200}}
	sel := New(layers, 0xbeef, nil)
	// default target is the highest-quality layer, index 1 (SSRC 200).

	_, keep := sel.Process(pkt(100, 1, 1000, []byte{1, 2}), "vp8")
	require.False(t, keep, "non-target substream must be dropped")

	out, keep := sel.Process(pkt(200, 1, 1000, []byte{1, 2}), "vp8")
	require.True(t, keep)
	require.Equal(t, uint32(0xbeef), out.SSRC, "output SSRC must always be the stable masked value")
}

func TestSwitchRequestsPLIAndKeepsSequenceContinuous(t *testing.T) {
	layers := []Layer{{SSRC: 100}, {SSRC: 200}}
	sel := New(layers, 0xbeef, nil)
	sel.SetTarget(1, 2)
	require.False(t, sel.PollPLI(), "initial target selection at construction time shouldn't count as a switch")

	out1, keep := sel.Process(pkt(200, 1000, 90000, []byte{1, 2}), "vp8")
	require.True(t, keep)
	require.Equal(t, uint16(1000), out1.SequenceNumber)

	sel.SetTarget(0, 2)
	require.True(t, sel.PollPLI(), "switching substream must request a keyframe")
	require.False(t, sel.PollPLI(), "PollPLI must clear after reading")

	out2, keep := sel.Process(pkt(100, 50, 9000, []byte{1, 2}), "vp8")
	require.True(t, keep)
	require.Equal(t, out1.SequenceNumber+1, out2.SequenceNumber, "output sequence must stay continuous across a switch")
	require.Greater(t, out2.Timestamp, out1.Timestamp, "output timestamp must not jump backward across a switch")
}

func TestTemporalLayerFiltering(t *testing.T) {
	layers := []Layer{{SSRC: 100}}
	sel := New(layers, 0xbeef, nil)
	sel.SetTarget(0, 0) // base temporal layer only

	_, keep := sel.Process(pkt(100, 1, 1000, vp8Payload(0, 0xaa)), "vp8")
	require.True(t, keep, "base temporal layer must pass when target is 0")

	_, keep = sel.Process(pkt(100, 2, 1000, vp8Payload(1, 0xaa)), "vp8")
	require.False(t, keep, "a higher temporal layer than the target must be dropped")
}

func TestVP8PictureIDRewriteStaysMonotonicAcrossSwitch(t *testing.T) {
	layers := []Layer{{SSRC: 100}, {SSRC: 200}}
	sel := New(layers, 0xbeef, nil)
	sel.SetTarget(1, 2)

	p1 := vp8Payload(2, 0x00)
	p1 = append([]byte{0x80, 0x20 | 0x80, 5}, 0x00) // I and T both present, 1-byte picture id = 5
	out1, keep := sel.Process(pkt(200, 1, 1000, p1), "vp8")
	require.True(t, keep)
	d1, ok := parseVP8Descriptor(out1.Payload)
	require.True(t, ok)
	require.Equal(t, 5, d1.pictureID)

	sel.SetTarget(0, 2)
	p2 := append([]byte{0x80, 0x20 | 0x80, 40}, 0x00) // a substream with an unrelated picture-id counter
	out2, keep := sel.Process(pkt(100, 2, 2000, p2), "vp8")
	require.True(t, keep)
	d2, ok := parseVP8Descriptor(out2.Payload)
	require.True(t, ok)
	require.Equal(t, 6, d2.pictureID, "picture-id must continue from the last emitted value, not the new substream's own counter")
}
