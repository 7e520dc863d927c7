package plugin

import (
	"fmt"

	"github.com/kestrelmedia/recordplay/internal/catalog"
	"github.com/kestrelmedia/recordplay/internal/dispatcher"
	"github.com/kestrelmedia/recordplay/internal/mjr"
	"github.com/kestrelmedia/recordplay/internal/pacer"
	"github.com/kestrelmedia/recordplay/internal/rtcsession"
	"github.com/kestrelmedia/recordplay/internal/session"
)

// Play implements dispatcher.Handler: it looks up a completed capture,
// attaches the session as a viewer, and opens the outbound peer
// connection's offer (component C7's Fresh/MediaReady -> Replaying
// transition begins here and completes in Start once the client answers).
func (e *Engine) Play(sessionID string, req dispatcher.PlayRequest) (dispatcher.PlayResponse, error) {
	pe, ok := e.getSession(sessionID)
	if !ok {
		return dispatcher.PlayResponse{}, fmt.Errorf("unknown session %s: %w", sessionID, dispatcher.ErrInvalidState)
	}

	if st := pe.sess.State(); st != session.Fresh && st != session.MediaReady {
		return dispatcher.PlayResponse{}, fmt.Errorf("session in state %s: %w", st, dispatcher.ErrInvalidState)
	}

	entry := e.catalog.Get(req.ID)
	if entry == nil || !entry.Completed() {
		return dispatcher.PlayResponse{}, fmt.Errorf("capture %s not found: %w", req.ID, dispatcher.ErrNotFound)
	}
	if !entry.HasAudio() && !entry.HasVideo() {
		return dispatcher.PlayResponse{}, fmt.Errorf("capture %s has no media: %w", req.ID, dispatcher.ErrInvalidCapture)
	}

	var tracks []rtcsession.Track
	if entry.HasAudio() {
		tracks = append(tracks, rtcsession.Track{Medium: mjr.MediumAudio, Codec: entry.AudioCodec})
	}
	if entry.HasVideo() {
		tracks = append(tracks, rtcsession.Track{Medium: mjr.MediumVideo, Codec: entry.VideoCodec})
	}

	replayPeer, offer, err := rtcsession.NewReplayPeer(e.api, tracks, func() {
		e.HangUp(sessionID)
	}, e.logger)
	if err != nil {
		return dispatcher.PlayResponse{}, fmt.Errorf("%s: %w", err, dispatcher.ErrInvalidSDP)
	}

	if pe.sess.State() == session.Fresh {
		if err := pe.sess.MarkMediaReady(); err != nil {
			replayPeer.Close()
			return dispatcher.PlayResponse{}, fmt.Errorf("%s: %w", err, dispatcher.ErrInvalidState)
		}
	}

	e.catalog.IncrementViewers(entry.ID)

	pe.mu.Lock()
	pe.entryID = entry.ID
	pe.replayPeer = replayPeer
	pe.mu.Unlock()

	return dispatcher.PlayResponse{
		Transcode: "preparing",
		Offer:     offer,
	}, nil
}

// Start implements dispatcher.Handler: it completes negotiation with the
// client's answer and opens the pacer (component C8), finishing the
// MediaReady -> Replaying transition Play began.
func (e *Engine) Start(sessionID string, req dispatcher.StartRequest) (dispatcher.StartResponse, error) {
	pe, ok := e.getSession(sessionID)
	if !ok {
		return dispatcher.StartResponse{}, fmt.Errorf("unknown session %s: %w", sessionID, dispatcher.ErrInvalidState)
	}

	pe.mu.Lock()
	replayPeer := pe.replayPeer
	entryID := pe.entryID
	pe.mu.Unlock()

	if replayPeer == nil {
		return dispatcher.StartResponse{}, fmt.Errorf("session %s has no pending play: %w", sessionID, dispatcher.ErrInvalidState)
	}

	if err := replayPeer.AcceptAnswer(req.Answer); err != nil {
		return dispatcher.StartResponse{}, fmt.Errorf("%s: %w", err, dispatcher.ErrInvalidSDP)
	}

	entry := e.catalog.Get(entryID)
	if entry == nil {
		return dispatcher.StartResponse{}, fmt.Errorf("capture %s vanished: %w", entryID, dispatcher.ErrNotFound)
	}

	var opts []pacer.Option
	if entry.HasAudio() {
		opts = append(opts, pacer.Option{Path: entry.AudioPath, Medium: mjr.MediumAudio, PayloadPT: catalog.PayloadType(entry.AudioCodec, false)})
	}
	if entry.HasVideo() {
		opts = append(opts, pacer.Option{Path: entry.VideoPath, Medium: mjr.MediumVideo, PayloadPT: catalog.PayloadType(entry.VideoCodec, true)})
	}

	p, err := pacer.Open(opts, replayPeer, e.logger, func() {
		e.HangUp(sessionID)
	})
	if err != nil {
		return dispatcher.StartResponse{}, fmt.Errorf("%s: %w", err, dispatcher.ErrInvalidCapture)
	}

	if err := pe.sess.StartReplaying(p); err != nil {
		p.Stop()
		return dispatcher.StartResponse{}, fmt.Errorf("%s: %w", err, dispatcher.ErrInvalidState)
	}

	pe.mu.Lock()
	pe.pacer = p
	pe.mu.Unlock()

	return dispatcher.StartResponse{Transcode: "playing"}, nil
}

// Stop implements dispatcher.Handler: it tears the session down exactly
// like a transport-level disconnect would.
func (e *Engine) Stop(sessionID string) (dispatcher.StopResponse, error) {
	if _, ok := e.getSession(sessionID); !ok {
		return dispatcher.StopResponse{}, fmt.Errorf("unknown session %s: %w", sessionID, dispatcher.ErrInvalidState)
	}
	e.hangUp(sessionID)
	return dispatcher.StopResponse{Transcode: "stopped"}, nil
}
