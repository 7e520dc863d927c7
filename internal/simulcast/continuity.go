package simulcast

// switchTSStep is the nominal per-frame timestamp increment used only to
// bridge a substream switch without a backward jump; it is an
// approximation (true encoder steps vary with frame rate) good enough to
// keep the output monotonic, which is all a downstream depacketizer
// requires.
const switchTSStep = 3000

// switchContext rewrites sequence numbers and timestamps from whichever
// incoming substream is currently selected into one continuous output
// stream, the way a live switch between simulcast encodings must look to
// a receiver that never negotiated simulcast itself.
type switchContext struct {
	haveBase   bool
	seqOffset  uint16
	tsOffset   uint32
	lastOutSeq uint16
	lastOutTS  uint32

	vp8 vp8RewriteState
}

func (c *switchContext) rewrite(seq uint16, ts uint32, switched bool) (uint16, uint32) {
	if !c.haveBase {
		c.haveBase = true
		c.lastOutSeq = seq
		c.lastOutTS = ts
		return seq, ts
	}

	if switched {
		c.seqOffset = c.lastOutSeq + 1 - seq
		c.tsOffset = c.lastOutTS + switchTSStep - ts
	}

	outSeq := seq + c.seqOffset
	outTS := ts + c.tsOffset
	c.lastOutSeq = outSeq
	c.lastOutTS = outTS
	return outSeq, outTS
}
