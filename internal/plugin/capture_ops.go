package plugin

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/kestrelmedia/recordplay/internal/capture"
	"github.com/kestrelmedia/recordplay/internal/catalog"
	"github.com/kestrelmedia/recordplay/internal/dispatcher"
	"github.com/kestrelmedia/recordplay/internal/mjr"
	"github.com/kestrelmedia/recordplay/internal/rtcpfeedback"
	"github.com/kestrelmedia/recordplay/internal/rtcsession"
	"github.com/kestrelmedia/recordplay/internal/session"
	"github.com/kestrelmedia/recordplay/internal/simulcast"
)

// List implements dispatcher.Handler.
func (e *Engine) List() ([]dispatcher.CaptureSummary, error) {
	out := make([]dispatcher.CaptureSummary, 0)
	for _, entry := range e.catalog.List() {
		if !entry.Completed() {
			continue
		}
		out = append(out, dispatcher.CaptureSummary{
			ID:         entry.ID,
			Name:       entry.Name,
			Date:       entry.Date.Format("2006-01-02 15:04:05"),
			AudioCodec: entry.AudioCodec,
			VideoCodec: entry.VideoCodec,
			Viewers:    entry.Viewers,
			Degraded:   entry.Legacy,
		})
	}
	return out, nil
}

// Update implements dispatcher.Handler.
func (e *Engine) Update() error {
	return e.catalog.Scan()
}

// Configure implements dispatcher.Handler.
func (e *Engine) Configure(dispatcher.ConfigureRequest) (dispatcher.ConfigureResponse, error) {
	return dispatcher.ConfigureResponse{
		Path:     e.conf.Path,
		RTMPBase: e.conf.RTMPBase,
		Events:   e.conf.Events,
	}, nil
}

func randomCaptureID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("%d", binary.BigEndian.Uint64(b[:]))
}

// registerCapture inserts a new catalog entry for id (or a server-chosen
// one if id is empty), retrying on collision per spec.md §3. It returns
// dispatcher.ErrAlreadyExists if a client-proposed id is already taken.
func (e *Engine) registerCapture(id, name string) (*catalog.Entry, error) {
	if id != "" {
		entry := &catalog.Entry{ID: id, Name: name, Date: time.Now()}
		if !e.catalog.RegisterNew(entry) {
			return nil, fmt.Errorf("capture %s already exists: %w", id, dispatcher.ErrAlreadyExists)
		}
		return entry, nil
	}

	for attempt := 0; attempt < 32; attempt++ {
		candidate := randomCaptureID()
		entry := &catalog.Entry{ID: candidate, Name: name, Date: time.Now()}
		if e.catalog.RegisterNew(entry) {
			return entry, nil
		}
	}
	return nil, fmt.Errorf("could not allocate a unique capture id: %w", dispatcher.ErrInvalidState)
}

// Transcode implements dispatcher.Handler: it opens a capture session
// against req.Offer (component C7's Fresh/MediaReady -> Capturing
// transition), registers the catalog entry, and wires the inbound peer
// connection to the capture writer/sink and RTCP feedback loop.
func (e *Engine) Transcode(sessionID string, req dispatcher.TranscodeRequest) (dispatcher.TranscodeResponse, error) {
	pe, ok := e.getSession(sessionID)
	if !ok {
		return dispatcher.TranscodeResponse{}, fmt.Errorf("unknown session %s: %w", sessionID, dispatcher.ErrInvalidState)
	}

	if st := pe.sess.State(); st != session.Fresh && st != session.MediaReady {
		return dispatcher.TranscodeResponse{}, fmt.Errorf("session in state %s: %w", st, dispatcher.ErrInvalidState)
	}

	entry, err := e.registerCapture(req.ID, req.Name)
	if err != nil {
		return dispatcher.TranscodeResponse{}, err
	}

	if pe.sess.State() == session.Fresh {
		if err := pe.sess.MarkMediaReady(); err != nil {
			e.catalog.Release(entry.ID)
			return dispatcher.TranscodeResponse{}, fmt.Errorf("%s: %w", err, dispatcher.ErrInvalidState)
		}
	}

	capturePeer, err := rtcsession.NewCapturePeer(e.api, func(track *rtcsession.IncomingTrack) {
		e.handleIncomingTrack(pe, entry.ID, track)
	}, func() {
		e.HangUp(sessionID)
	}, e.logger)
	if err != nil {
		e.catalog.Release(entry.ID)
		return dispatcher.TranscodeResponse{}, fmt.Errorf("%s: %w", err, dispatcher.ErrInvalidSDP)
	}

	answer, err := capturePeer.AcceptOffer(req.Offer)
	if err != nil {
		capturePeer.Close()
		e.catalog.Release(entry.ID)
		return dispatcher.TranscodeResponse{}, fmt.Errorf("%s: %w", err, dispatcher.ErrInvalidSDP)
	}

	var sink capture.Sink
	if e.sink != nil {
		sink = e.sink(entry.ID)
	}
	writer := capture.New(e.conf.Path, entry.ID, sink, e.conf.WriteQueueSize, e.logger)

	if err := pe.sess.StartCapturing(writer); err != nil {
		capturePeer.Close()
		writer.Close()
		e.catalog.Release(entry.ID)
		return dispatcher.TranscodeResponse{}, fmt.Errorf("%s: %w", err, dispatcher.ErrInvalidState)
	}

	pe.mu.Lock()
	pe.entryID = entry.ID
	pe.capturePeer = capturePeer
	pe.writer = writer
	pe.bitrate = req.Bitrate
	pe.keyframeInterval = req.KeyframeIntervalMs
	pe.legacyClobber = e.conf.LegacyKeyframeClobber
	pe.mu.Unlock()

	return dispatcher.TranscodeResponse{
		Transcode: "transcoding",
		ID:        entry.ID,
		Answer:    answer,
	}, nil
}

// handleIncomingTrack is the per-track pipeline: simulcast selection
// (video only), RTCP feedback (video only), and the fan-out to the MJR
// writer/sink (component C3/C4).
func (e *Engine) handleIncomingTrack(pe *peerEntry, entryID string, track *rtcsession.IncomingTrack) {
	medium := mjr.MediumAudio
	if track.IsVideo {
		medium = mjr.MediumVideo
	}

	e.catalog.SetCodecs(entryID, codecIfAudio(medium, track.Codec), codecIfVideo(medium, track.Codec))

	pe.mu.Lock()
	writer := pe.writer
	capturePeer := pe.capturePeer
	bitrate := pe.bitrate
	keyframeMs := pe.keyframeInterval
	legacyClobber := pe.legacyClobber
	pe.mu.Unlock()

	if writer == nil || capturePeer == nil {
		return
	}

	var selector *simulcast.Selector
	var feedback *rtcpfeedback.Feedback

	if track.IsVideo {
		selector = simulcast.New(nil, track.SSRC, nil)

		interval := time.Duration(keyframeMs) * time.Millisecond
		if interval <= 0 {
			interval = rtcpfeedback.DefaultKeyframeInterval
		}
		if bitrate == 0 {
			bitrate = defaultTargetBitrate
		}

		feedback = rtcpfeedback.New(track.SSRC, 0, bitrate, interval, legacyClobber, capturePeer.WriteRTCP, e.logger)

		pe.mu.Lock()
		pe.videoFB = feedback
		pe.mu.Unlock()
	}

	for {
		raw, err := track.ReadRTP()
		if err != nil {
			return
		}

		if !track.IsVideo {
			writer.Push(medium, track.Codec, raw)
			continue
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(raw); err != nil {
			continue
		}

		if feedback != nil {
			feedback.OnPacket()
		}

		out, keep := selector.Process(&pkt, track.Codec)
		if !keep {
			continue
		}

		if selector.PollPLI() {
			_ = capturePeer.WriteRTCP(pliPacket(track.SSRC))
		}

		outBytes, err := out.Marshal()
		if err != nil {
			continue
		}
		writer.Push(medium, track.Codec, outBytes)
	}
}

func codecIfAudio(m mjr.Medium, codec string) string {
	if m == mjr.MediumAudio {
		return codec
	}
	return ""
}

func codecIfVideo(m mjr.Medium, codec string) string {
	if m == mjr.MediumVideo {
		return codec
	}
	return ""
}

// defaultTargetBitrate is used when a transcode request doesn't specify
// one; 1.5 Mbps is a reasonable default ceiling for a single recorded
// video stream.
const defaultTargetBitrate = 1_500_000

// pliPacket builds a standalone keyframe request for a substream switch,
// separate from rtcpfeedback's periodic FIR+PLI cadence.
func pliPacket(mediaSSRC uint32) []rtcp.Packet {
	return []rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: mediaSSRC},
	}
}
