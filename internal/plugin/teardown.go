package plugin

import (
	"path/filepath"

	"github.com/kestrelmedia/recordplay/internal/logger"
	"github.com/kestrelmedia/recordplay/internal/session"
)

// hangUp tears a session's engine-level bookkeeping down exactly once:
// session.Session.HangUp already makes closing the writer/pacer
// idempotent, but the surrounding catalog/notify work (persisting the
// .nfo descriptor, releasing the refcount, firing DoneEvent) isn't
// covered by that latch, so peerEntry carries its own.
func (e *Engine) hangUp(sessionID string) {
	pe, ok := e.getSession(sessionID)
	if !ok {
		return
	}

	pe.mu.Lock()
	if pe.tornDown {
		pe.mu.Unlock()
		return
	}
	pe.tornDown = true

	role := pe.sess.Role()
	entryID := pe.entryID
	writer := pe.writer
	audioFB := pe.audioFB
	videoFB := pe.videoFB
	capturePeer := pe.capturePeer
	replayPeer := pe.replayPeer
	pe.mu.Unlock()

	if audioFB != nil {
		audioFB.Close()
	}
	if videoFB != nil {
		videoFB.Close()
	}

	pe.sess.HangUp()

	switch role {
	case session.RoleCapturer:
		e.finishCapture(entryID, writer, e.logger)
	case session.RoleReplayer:
		if entryID != "" {
			e.catalog.DecrementViewers(entryID)
			e.catalog.Release(entryID)
		}
	}

	if capturePeer != nil {
		capturePeer.Close()
	}
	if replayPeer != nil {
		replayPeer.Close()
	}

	e.notifyDone(sessionID)
}

// finishCapture persists the .nfo descriptor for a just-closed capturing
// session and releases its catalog refcount, marking it Completed
// (component C6's completed flag). Paths are recorded relative to the
// capture directory, matching the convention loadDescriptor expects when
// reading an .nfo back.
func (e *Engine) finishCapture(entryID string, writer interface {
	Paths() (audio, video string)
}, log logger.Writer) {
	if entryID == "" {
		return
	}

	var audioName, videoName string
	if writer != nil {
		audioPath, videoPath := writer.Paths()
		if audioPath != "" {
			audioName = filepath.Base(audioPath)
		}
		if videoPath != "" {
			videoName = filepath.Base(videoPath)
		}
	}

	e.catalog.SetMediaPaths(entryID, audioName, videoName)

	entry := e.catalog.Get(entryID)
	if entry == nil {
		return
	}

	if !entry.HasAudio() && !entry.HasVideo() {
		e.catalog.Release(entryID)
		return
	}

	if err := e.catalog.WriteDescriptor(entry); err != nil {
		log.Log(logger.Error, "plugin: write descriptor for %s: %s", entryID, err)
	}

	e.catalog.Release(entryID)
}
