// Package simulcast implements the substream/temporal-layer selector
// (component C5): given a negotiated set of simulcast layers, it decides
// which incoming RTP packets reach the capture/publish path, rewrites
// sequence numbers and timestamps through a switching context so the
// output stream stays continuous across a substream change, and masks the
// output SSRC behind one stable value.
package simulcast

import (
	"github.com/pion/rtp"
)

// Layer identifies one simulcast encoding, matched either by SSRC (legacy
// simulcast) or by the RTP stream id carried in the "rid"/"rrid" header
// extension (modern simulcast, as negotiated in the SDP).
type Layer struct {
	SSRC uint32
	RID  string
}

// RIDResolver extracts the rid carried by an RTP packet, if any. Reading
// header extensions is negotiation-specific (the extension id is assigned
// per SDP offer/answer), so it is supplied by the caller rather than
// hardcoded here.
type RIDResolver func(pkt *rtp.Packet) (rid string, ok bool)

// Selector picks one simulcast substream/temporal-layer combination and
// rewrites the packets that belong to it into one continuous output
// stream. It is not safe for concurrent use; a session drives it from a
// single RTP ingest goroutine.
type Selector struct {
	layers      []Layer
	resolveRID  RIDResolver
	recVSSRC    uint32
	maxTemporal int

	targetSubstream int
	targetTemporal  int
	currentSub      int
	haveCurrent     bool

	ctx switchContext

	pendingPLI bool
}

// New allocates a Selector. layers is the negotiated substream list,
// ordered from lowest to highest quality (index 0 is the base layer).
// recVSSRC is the stable SSRC every packet leaving the selector carries.
// resolveRID may be nil if the negotiation uses SSRC-keyed simulcast
// instead of rid-keyed simulcast.
func New(layers []Layer, recVSSRC uint32, resolveRID RIDResolver) *Selector {
	return &Selector{
		layers:          layers,
		resolveRID:      resolveRID,
		recVSSRC:        recVSSRC,
		targetSubstream: len(layers) - 1, // default to the highest quality available
		maxTemporal:     2,
		targetTemporal:  2,
	}
}

// SetTarget changes which substream/temporal layer the selector passes
// through. A substream change requests a keyframe (PollPLI) so the
// receiver can start decoding the new stream cleanly.
func (s *Selector) SetTarget(substream, temporal int) {
	if substream < 0 {
		substream = 0
	}
	if substream > len(s.layers)-1 {
		substream = len(s.layers) - 1
	}
	if temporal < 0 {
		temporal = 0
	}
	if temporal > s.maxTemporal {
		temporal = s.maxTemporal
	}

	if substream != s.targetSubstream {
		s.pendingPLI = true
	}
	s.targetSubstream = substream
	s.targetTemporal = temporal
}

// PollPLI reports (and clears) whether a substream switch since the last
// call requires a keyframe request to the sender.
func (s *Selector) PollPLI() bool {
	v := s.pendingPLI
	s.pendingPLI = false
	return v
}

func (s *Selector) substreamOf(pkt *rtp.Packet) (int, bool) {
	if s.resolveRID != nil {
		if rid, ok := s.resolveRID(pkt); ok {
			for i, l := range s.layers {
				if l.RID == rid {
					return i, true
				}
			}
			return 0, false
		}
	}
	for i, l := range s.layers {
		if l.SSRC == pkt.SSRC {
			return i, true
		}
	}
	return 0, false
}

// Process applies the current target to one incoming packet. It returns
// keep=false if the packet belongs to a substream/temporal layer that
// isn't currently selected, in which case it must be dropped. codec
// selects the payload-descriptor rewrite (only VP8 is rewritten; other
// codecs pass their payload through unchanged).
func (s *Selector) Process(pkt *rtp.Packet, codec string) (out *rtp.Packet, keep bool) {
	sub, ok := s.substreamOf(pkt)
	if !ok {
		// Single-stream session (no simulcast negotiated): pass everything.
		if len(s.layers) == 0 {
			return s.rewrite(pkt, codec)
		}
		return nil, false
	}

	if sub != s.targetSubstream {
		return nil, false
	}

	if temporalLayerOf(pkt, codec) > s.targetTemporal {
		return nil, false
	}

	switched := !s.haveCurrent || s.currentSub != sub
	s.currentSub = sub
	s.haveCurrent = true

	return s.rewrite(pkt, codec, switched)
}

func (s *Selector) rewrite(pkt *rtp.Packet, codec string, switched ...bool) (*rtp.Packet, bool) {
	didSwitch := len(switched) > 0 && switched[0]

	out := &rtp.Packet{
		Header:  pkt.Header,
		Payload: append([]byte(nil), pkt.Payload...),
	}

	seq, ts := s.ctx.rewrite(pkt.SequenceNumber, pkt.Timestamp, didSwitch)
	out.SequenceNumber = seq
	out.Timestamp = ts
	out.SSRC = s.recVSSRC

	if codec == "vp8" {
		rewriteVP8Descriptor(out, &s.ctx.vp8, didSwitch)
	}

	return out, true
}
