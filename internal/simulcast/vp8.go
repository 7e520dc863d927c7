package simulcast

import "github.com/pion/rtp"

// vp8Descriptor is the subset of RFC 7741's payload descriptor this
// package reads/rewrites: whether the extended fields are present, and
// the byte offsets of the picture-id and TL0PICIDX fields when they are.
type vp8Descriptor struct {
	extended    bool
	pictureID   int
	pidLen      int // 0, 1, or 2 bytes
	pidOffset   int
	hasTL0      bool
	tl0Offset   int
	hasTID      bool
	tidOffset   int
	temporalID  int
	headerLen   int
}

func parseVP8Descriptor(payload []byte) (vp8Descriptor, bool) {
	var d vp8Descriptor
	if len(payload) < 1 {
		return d, false
	}

	pos := 1
	d.extended = payload[0]&0x80 != 0
	if !d.extended {
		d.headerLen = pos
		return d, true
	}

	if len(payload) < 2 {
		return d, false
	}
	ext := payload[1]
	hasI := ext&0x80 != 0
	hasL := ext&0x40 != 0
	hasT := ext&0x20 != 0
	hasK := ext&0x10 != 0
	pos = 2

	if hasI {
		if len(payload) < pos+1 {
			return d, false
		}
		d.pidOffset = pos
		if payload[pos]&0x80 != 0 {
			if len(payload) < pos+2 {
				return d, false
			}
			d.pidLen = 2
			d.pictureID = int(payload[pos]&0x7f)<<8 | int(payload[pos+1])
			pos += 2
		} else {
			d.pidLen = 1
			d.pictureID = int(payload[pos] & 0x7f)
			pos++
		}
	}

	if hasL {
		if len(payload) < pos+1 {
			return d, false
		}
		d.hasTL0 = true
		d.tl0Offset = pos
		pos++
	}

	if hasT || hasK {
		if len(payload) < pos+1 {
			return d, false
		}
		d.hasTID = true
		d.tidOffset = pos
		d.temporalID = int(payload[pos] >> 6)
		pos++
	}

	d.headerLen = pos
	return d, true
}

// temporalLayerOf returns the VP8 temporal layer id carried by pkt, or 0
// for non-VP8 codecs and packets with no extended descriptor (everything
// belongs to the base temporal layer in that case).
func temporalLayerOf(pkt *rtp.Packet, codec string) int {
	if codec != "vp8" {
		return 0
	}
	d, ok := parseVP8Descriptor(pkt.Payload)
	if !ok || !d.hasTID {
		return 0
	}
	return d.temporalID
}

// vp8RewriteState tracks the offset applied to keep picture-id/TL0PICIDX
// continuous across a substream switch, mirroring switchContext's
// sequence/timestamp rewriting.
type vp8RewriteState struct {
	havePID    bool
	pidOffset  int
	lastOutPID int

	haveTL0    bool
	tl0Offset  int
	lastOutTL0 int
}

// rewriteVP8Descriptor patches pkt.Payload in place so its picture-id and
// TL0PICIDX fields (when present) continue from the last value this
// selector emitted, instead of jumping to whatever the newly selected
// substream's own counters happen to be at. On switched, the offset is
// recomputed so the next value picks up right after the last one this
// selector emitted, the same rule switchContext applies to seq/ts.
func rewriteVP8Descriptor(pkt *rtp.Packet, st *vp8RewriteState, switched bool) {
	d, ok := parseVP8Descriptor(pkt.Payload)
	if !ok || !d.extended {
		return
	}

	if d.pidLen > 0 {
		if !st.havePID {
			st.havePID = true
			st.pidOffset = 0
		} else if switched {
			st.pidOffset = (st.lastOutPID + 1 - d.pictureID) & pidMask(d.pidLen)
		}
		out := (d.pictureID + st.pidOffset) & pidMask(d.pidLen)
		st.lastOutPID = out
		writeVP8PictureID(pkt.Payload, d, out)
	}

	if d.hasTL0 {
		in := int(pkt.Payload[d.tl0Offset])
		if !st.haveTL0 {
			st.haveTL0 = true
			st.tl0Offset = 0
		} else if switched {
			st.tl0Offset = (st.lastOutTL0 + 1 - in) & 0xff
		}
		out := (in + st.tl0Offset) & 0xff
		st.lastOutTL0 = out
		pkt.Payload[d.tl0Offset] = byte(out)
	}
}

func pidMask(n int) int {
	if n == 2 {
		return 0x7fff
	}
	return 0x7f
}

func writeVP8PictureID(payload []byte, d vp8Descriptor, v int) {
	if d.pidLen == 2 {
		payload[d.pidOffset] = byte(v>>8) | 0x80
		payload[d.pidOffset+1] = byte(v)
	} else {
		payload[d.pidOffset] = byte(v) & 0x7f
	}
}
