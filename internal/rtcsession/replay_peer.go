package rtcsession

import (
	"fmt"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/kestrelmedia/recordplay/internal/logger"
	"github.com/kestrelmedia/recordplay/internal/mjr"
)

const webrtcStreamID = "recordplay"

// ReplayPeer is the outbound leg: it offers up to one audio and one
// video track (whichever the capture has) and, once the client answers,
// implements internal/pacer.Transport by re-marshaling the pacer's raw
// RTP bytes onto the matching local track.
type ReplayPeer struct {
	pc     *webrtc.PeerConnection
	logger logger.Writer

	audio *webrtc.TrackLocalStaticRTP
	video *webrtc.TrackLocalStaticRTP

	onDisc     func()
	discSignal bool
}

// Track describes one outgoing track to add, mirroring the capture entry
// fields the replay needs: which medium and which codec. The payload type
// is not part of it; the pacer rewrites that onto every packet
// (internal/catalog.PayloadType).
type Track struct {
	Medium mjr.Medium
	Codec  string
}

// NewReplayPeer allocates the outbound PeerConnection, adds tracks, and
// returns the local offer SDP. onDisconnected mirrors CapturePeer's.
func NewReplayPeer(api *webrtc.API, tracks []Track, onDisconnected func(), parent logger.Writer) (*ReplayPeer, string, error) {
	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, "", fmt.Errorf("rtcsession: new replay peer connection: %w", err)
	}

	p := &ReplayPeer{pc: pc, logger: parent, onDisc: onDisconnected}

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		switch state {
		case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed, webrtc.ICEConnectionStateDisconnected:
			p.fireDisconnected()
		}
	})

	for _, t := range tracks {
		mime, clockRate := mimeTypeForCodec(t.Codec, t.Medium == mjr.MediumVideo)
		id := "audio"
		if t.Medium == mjr.MediumVideo {
			id = "video"
		}

		track, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: mime, ClockRate: clockRate},
			id,
			webrtcStreamID,
		)
		if err != nil {
			pc.Close()
			return nil, "", fmt.Errorf("rtcsession: new local track: %w", err)
		}

		sender, err := pc.AddTrack(track)
		if err != nil {
			pc.Close()
			return nil, "", fmt.Errorf("rtcsession: add track: %w", err)
		}

		// Drain incoming RTCP on the sender so interceptors keep working,
		// mirroring the teacher's OutgoingTrack construction.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(buf); err != nil {
					return
				}
			}
		}()

		if t.Medium == mjr.MediumVideo {
			p.video = track
		} else {
			p.audio = track
		}
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return nil, "", fmt.Errorf("rtcsession: create offer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return nil, "", fmt.Errorf("rtcsession: set local offer: %w", err)
	}
	<-gatherComplete

	return p, pc.LocalDescription().SDP, nil
}

func (p *ReplayPeer) fireDisconnected() {
	if p.discSignal {
		return
	}
	p.discSignal = true
	if p.onDisc != nil {
		p.onDisc()
	}
}

// AcceptAnswer completes the negotiation once the client has answered.
func (p *ReplayPeer) AcceptAnswer(answer string) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	})
}

// SendRTP implements internal/pacer.Transport: payload is a raw, already
// payload-type-patched RTP packet (header+payload) read straight off an
// MJR file; it's unmarshaled and re-sent on whichever local track
// matches its medium.
func (p *ReplayPeer) SendRTP(medium mjr.Medium, payload []byte) error {
	track := p.audio
	if medium == mjr.MediumVideo {
		track = p.video
	}
	if track == nil {
		return fmt.Errorf("rtcsession: no local track for medium %s", medium)
	}

	var pkt rtp.Packet
	if err := pkt.Unmarshal(payload); err != nil {
		return fmt.Errorf("rtcsession: unmarshal replay packet: %w", err)
	}
	return track.WriteRTP(&pkt)
}

// Close tears down the peer connection.
func (p *ReplayPeer) Close() error {
	return p.pc.Close()
}
