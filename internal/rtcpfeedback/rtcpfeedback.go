// Package rtcpfeedback implements the RTCP feedback loop a capturing
// session drives toward its publisher (component C10): a REMB bitrate
// ramp followed by a steady-state cadence, and a periodic FIR+PLI
// keyframe request.
package rtcpfeedback

import (
	"sync"
	"time"

	"github.com/pion/rtcp"

	"github.com/kestrelmedia/recordplay/internal/logger"
)

// DefaultKeyframeInterval is used when a session doesn't configure one.
const DefaultKeyframeInterval = 15 * time.Second

const rembTick = 5 * time.Second

const rembRampSteps = 4

// legacyMu/legacyInterval reproduce a quirk in the system this package's
// behavior is modeled on: its keyframe-request cadence lived in one
// process-wide variable, so the most recently configured session's
// interval silently applied to every other session's feedback loop too.
// The corrected default (each Feedback uses its own keyframeInterval)
// is what New returns unless LegacyKeyframeClobber is set, which opts
// back into the shared-variable behavior for compatibility with callers
// that relied on it.
var (
	legacyMu       sync.Mutex
	legacyInterval = DefaultKeyframeInterval
)

// Feedback drives one session's outgoing RTCP toward its publisher.
type Feedback struct {
	mediaSSRC  uint32
	senderSSRC uint32

	targetBitrate    uint64
	keyframeInterval time.Duration
	legacyClobber    bool

	sendRTCP func([]rtcp.Packet) error
	logger   logger.Writer

	firSeq uint8

	// rembMu guards rembCount, incremented once per video RTP packet
	// (OnPacket) until the ramp-up completes.
	rembMu    sync.Mutex
	rembCount int

	// rampComplete is closed exactly once, the moment OnPacket sends the
	// rembRampSteps-th ramp REMB, so run() can switch from per-packet
	// ramp reports to its steady 5-second ticker.
	rampComplete chan struct{}
	rampOnce     sync.Once

	stop chan struct{}
	done chan struct{}
}

// New allocates and starts a Feedback loop. targetBitrate is the steady
// state REMB value in bits/second; keyframeInterval <= 0 uses
// DefaultKeyframeInterval.
func New(
	mediaSSRC, senderSSRC uint32,
	targetBitrate uint64,
	keyframeInterval time.Duration,
	legacyKeyframeClobber bool,
	sendRTCP func([]rtcp.Packet) error,
	parent logger.Writer,
) *Feedback {
	if keyframeInterval <= 0 {
		keyframeInterval = DefaultKeyframeInterval
	}

	f := &Feedback{
		mediaSSRC:        mediaSSRC,
		senderSSRC:       senderSSRC,
		targetBitrate:    targetBitrate,
		keyframeInterval: keyframeInterval,
		legacyClobber:    legacyKeyframeClobber,
		sendRTCP:         sendRTCP,
		logger:           parent,
		rampComplete:     make(chan struct{}),
		stop:             make(chan struct{}),
		done:             make(chan struct{}),
	}

	if legacyKeyframeClobber {
		legacyMu.Lock()
		legacyInterval = keyframeInterval
		legacyMu.Unlock()
	}

	go f.run()
	return f
}

// rembRate applies the ramp-up rule for the count-th REMB report (0-indexed):
// the first rembRampSteps reports scale up from bitrate/rembRampSteps to the
// full target, after which every report is the full target.
func rembRate(targetBitrate uint64, count int) uint64 {
	if count < rembRampSteps {
		return targetBitrate / uint64(rembRampSteps-count)
	}
	return targetBitrate
}

func (f *Feedback) effectiveKeyframeInterval() time.Duration {
	if !f.legacyClobber {
		return f.keyframeInterval
	}
	legacyMu.Lock()
	defer legacyMu.Unlock()
	return legacyInterval
}

// OnPacket notifies the feedback loop that a video RTP packet has arrived
// on the capturer's ingest path (spec.md §4.9: "running under the RTP
// ingest path for the capturer's video"). It drives the REMB ramp-up
// directly, one report per packet, for the first rembRampSteps calls
// (invariant 11: B/4, B/3, B/2, B); calls after the ramp completes are
// no-ops, and steady-state REMB reverts to run()'s 5-second ticker.
func (f *Feedback) OnPacket() {
	f.rembMu.Lock()
	if f.rembCount >= rembRampSteps {
		f.rembMu.Unlock()
		return
	}
	rate := rembRate(f.targetBitrate, f.rembCount)
	f.rembCount++
	rampDone := f.rembCount >= rembRampSteps
	f.rembMu.Unlock()

	f.sendREMB(rate)

	if rampDone {
		f.rampOnce.Do(func() { close(f.rampComplete) })
	}
}

func (f *Feedback) sendREMB(rate uint64) {
	err := f.sendRTCP([]rtcp.Packet{
		&rtcp.ReceiverEstimatedMaximumBitrate{
			SenderSSRC: f.senderSSRC,
			Bitrate:    float32(rate),
			SSRCs:      []uint32{f.mediaSSRC},
		},
	})
	if err != nil {
		f.logger.Log(logger.Warn, "rtcpfeedback: send REMB: %s", err)
	}
}

func (f *Feedback) run() {
	defer close(f.done)

	keyframeTicker := time.NewTicker(f.effectiveKeyframeInterval())
	defer keyframeTicker.Stop()

	rampDone := f.rampComplete
	var rembTicker *time.Ticker
	var rembTickerC <-chan time.Time

	for {
		select {
		case <-rampDone:
			rampDone = nil
			rembTicker = time.NewTicker(rembTick)
			rembTickerC = rembTicker.C

		case <-rembTickerC:
			f.sendREMB(f.targetBitrate)

		case <-keyframeTicker.C:
			f.firSeq++
			err := f.sendRTCP([]rtcp.Packet{
				&rtcp.FullIntraRequest{
					SenderSSRC: f.senderSSRC,
					MediaSSRC:  f.mediaSSRC,
					FIR: []rtcp.FIREntry{
						{SSRC: f.mediaSSRC, SequenceNumber: f.firSeq},
					},
				},
				&rtcp.PictureLossIndication{
					SenderSSRC: f.senderSSRC,
					MediaSSRC:  f.mediaSSRC,
				},
			})
			if err != nil {
				f.logger.Log(logger.Warn, "rtcpfeedback: send FIR/PLI: %s", err)
			}

			// effectiveKeyframeInterval may have changed underneath a
			// legacy-clobbered loop since the ticker was created.
			if f.legacyClobber {
				keyframeTicker.Reset(f.effectiveKeyframeInterval())
			}

		case <-f.stop:
			if rembTicker != nil {
				rembTicker.Stop()
			}
			return
		}
	}
}

// Close stops the feedback loop and waits for it to exit.
func (f *Feedback) Close() {
	select {
	case <-f.stop:
	default:
		close(f.stop)
	}
	<-f.done
}
