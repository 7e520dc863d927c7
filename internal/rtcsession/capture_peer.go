package rtcsession

import (
	"fmt"
	"strings"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"

	"github.com/kestrelmedia/recordplay/internal/logger"
)

// IncomingTrack is one track of a capture leg, adapted from the teacher's
// internal/webrtc.IncomingTrack: it names which medium/codec it carries
// and offers a blocking ReadRTP, but leaves loss detection and simulcast
// layer selection to the caller (internal/simulcast, component C5) rather
// than assuming a single non-simulcast stream.
type IncomingTrack struct {
	track    *webrtc.TrackRemote
	receiver *webrtc.RTPReceiver
	logger   logger.Writer

	IsVideo bool
	Codec   string
	RID     string
	SSRC    uint32
}

func newIncomingTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver, log logger.Writer) *IncomingTrack {
	t := &IncomingTrack{
		track:    track,
		receiver: receiver,
		logger:   log,
		IsVideo:  track.Kind() == webrtc.RTPCodecTypeVideo,
		Codec:    codecFromMimeType(track.Codec().MimeType),
		RID:      track.RID(),
		SSRC:     uint32(track.SSRC()),
	}

	// Drain incoming RTCP on the receiver so pion's interceptors (RTX,
	// NACK generation) keep working, mirroring the teacher's
	// IncomingTrack construction.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := receiver.Read(buf); err != nil {
				return
			}
		}
	}()

	return t
}

func codecFromMimeType(mime string) string {
	switch strings.ToLower(mime) {
	case strings.ToLower(webrtc.MimeTypeOpus):
		return "opus"
	case strings.ToLower(webrtc.MimeTypePCMU):
		return "pcmu"
	case strings.ToLower(webrtc.MimeTypePCMA):
		return "pcma"
	case strings.ToLower(webrtc.MimeTypeG722):
		return "g722"
	case strings.ToLower(webrtc.MimeTypeVP8):
		return "vp8"
	case strings.ToLower(webrtc.MimeTypeVP9):
		return "vp9"
	case strings.ToLower(webrtc.MimeTypeH264):
		return "h264"
	default:
		return "none"
	}
}

// ReadRTP reads the next raw RTP packet (header+payload, as received off
// the wire) off this track. Empty packets Chrome occasionally sends are
// skipped, per the teacher's IncomingTrack.ReadRTP.
func (t *IncomingTrack) ReadRTP() ([]byte, error) {
	for {
		pkt, _, err := t.track.ReadRTP()
		if err != nil {
			return nil, err
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		raw, err := pkt.Marshal()
		if err != nil {
			continue
		}
		return raw, nil
	}
}

// CapturePeer is the inbound leg: it accepts a publisher's SDP offer,
// answers it, and hands every negotiated track to OnTrack's callback.
type CapturePeer struct {
	pc     *webrtc.PeerConnection
	logger logger.Writer

	onTrack    func(*IncomingTrack)
	onDisc     func()
	discSignal bool
}

// NewCapturePeer allocates the inbound PeerConnection. onTrack is invoked
// once per negotiated track (audio and/or video); onDisconnected fires
// once, when ICE reports the connection failed/closed/disconnected, the
// host-loss signal spec.md §4.6/§5 treats as authoritative.
func NewCapturePeer(api *webrtc.API, onTrack func(*IncomingTrack), onDisconnected func(), parent logger.Writer) (*CapturePeer, error) {
	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("rtcsession: new capture peer connection: %w", err)
	}

	p := &CapturePeer{pc: pc, logger: parent, onTrack: onTrack, onDisc: onDisconnected}

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		p.onTrack(newIncomingTrack(track, receiver, parent))
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		switch state {
		case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed, webrtc.ICEConnectionStateDisconnected:
			p.fireDisconnected()
		}
	})

	return p, nil
}

func (p *CapturePeer) fireDisconnected() {
	if p.discSignal {
		return
	}
	p.discSignal = true
	if p.onDisc != nil {
		p.onDisc()
	}
}

// AcceptOffer sets the remote offer, creates a local answer, waits for
// ICE gathering to complete (this plugin uses vanilla, non-trickled SDP,
// the same simplification the upstream plugin's signaling made), and
// returns the answer SDP text.
func (p *CapturePeer) AcceptOffer(offer string) (string, error) {
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offer,
	}); err != nil {
		return "", fmt.Errorf("rtcsession: set remote offer: %w", err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("rtcsession: create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("rtcsession: set local answer: %w", err)
	}
	<-gatherComplete

	return p.pc.LocalDescription().SDP, nil
}

// WriteRTCP sends an RTCP compound packet toward the publisher (REMB,
// PLI, FIR — component C10).
func (p *CapturePeer) WriteRTCP(pkts []rtcp.Packet) error {
	return p.pc.WriteRTCP(pkts)
}

// Close tears down the peer connection.
func (p *CapturePeer) Close() error {
	return p.pc.Close()
}
