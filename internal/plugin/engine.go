// Package plugin wires every component (C1-C10) behind the single engine
// object spec.md §9 calls for: one process-wide struct, built at init and
// handed to the host (here, cmd/recordplay's HTTP harness) before any
// request can race its construction. It implements dispatcher.Handler,
// translating each wire verb into session/catalog/transport operations.
package plugin

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelmedia/recordplay/internal/capture"
	"github.com/kestrelmedia/recordplay/internal/catalog"
	"github.com/kestrelmedia/recordplay/internal/config"
	"github.com/kestrelmedia/recordplay/internal/dispatcher"
	"github.com/kestrelmedia/recordplay/internal/logger"
	"github.com/kestrelmedia/recordplay/internal/pacer"
	"github.com/kestrelmedia/recordplay/internal/rtcpfeedback"
	"github.com/kestrelmedia/recordplay/internal/rtcsession"
	"github.com/kestrelmedia/recordplay/internal/session"
	"github.com/pion/webrtc/v4"
)

// SinkFactory builds the live publish sink (component C4) for one
// capture id, or nil if the deployment has no live-streaming endpoint
// configured. The RTMP muxer itself is an external collaborator per
// spec.md §1; the engine only needs something satisfying capture.Sink.
type SinkFactory func(captureID string) capture.Sink

// peerEntry is the engine's private bookkeeping for one Session: the
// transport and media-pipeline objects a Session's Capturer/Replayer
// interfaces don't expose, plus the catalog entry id it's bound to.
type peerEntry struct {
	mu sync.Mutex

	sess *session.Session

	entryID string

	capturePeer *rtcsession.CapturePeer
	writer      *capture.Writer
	audioFB     *rtcpfeedback.Feedback
	videoFB     *rtcpfeedback.Feedback

	replayPeer *rtcsession.ReplayPeer
	pacer      *pacer.Pacer

	bitrate          uint64
	keyframeInterval int
	legacyClobber    bool

	tornDown bool
}

// Engine is the plugin's process-wide object.
type Engine struct {
	conf    *config.Config
	logger  logger.Writer
	api     *webrtc.API
	catalog *catalog.Catalog
	sink    SinkFactory

	mu       sync.Mutex
	sessions map[string]*peerEntry

	notifier dispatcher.Notifier
}

// New allocates an Engine. conf must already be validated
// (config.Config.Validate). sink may be nil (no live-streaming sink is
// configured for any capture).
func New(conf *config.Config, api *webrtc.API, sink SinkFactory, parent logger.Writer) *Engine {
	e := &Engine{
		conf:     conf,
		logger:   parent,
		api:      api,
		catalog:  catalog.New(conf.Path, parent),
		sink:     sink,
		sessions: make(map[string]*peerEntry),
	}
	return e
}

// SetNotifier wires the dispatcher.Notifier the engine pushes async verb
// results and DoneEvents through. Called once during wiring, before any
// request reaches Dispatch.
func (e *Engine) SetNotifier(n dispatcher.Notifier) {
	e.notifier = n
}

// Start performs the engine's one-time startup: an initial catalog scan
// and, if configured, a live directory watch (SPEC_FULL.md §C.2).
func (e *Engine) Start(watch bool) error {
	if err := e.catalog.Scan(); err != nil {
		return fmt.Errorf("plugin: initial scan: %w", err)
	}
	if watch {
		if err := e.catalog.Watch(2 * time.Second); err != nil {
			return fmt.Errorf("plugin: start watch: %w", err)
		}
	}
	return nil
}

// Close tears down every live session and stops the catalog watch.
func (e *Engine) Close() {
	e.mu.Lock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		e.hangUp(id)
	}

	e.catalog.StopWatch()
}

// CreateSession allocates a new, Fresh session and returns its id.
func (e *Engine) CreateSession() string {
	id := uuid.NewString()
	pe := &peerEntry{sess: session.New(id, e.logger, func() { e.forgetSession(id) })}

	e.mu.Lock()
	e.sessions[id] = pe
	e.mu.Unlock()

	return id
}

// HangUp is the host-facing counterpart to a transport-level
// disconnect/timeout (spec.md §4.6/§5's 10-second inactivity window): it
// tears the session down exactly like a `stop` request would, but isn't
// itself a wire verb.
func (e *Engine) HangUp(sessionID string) {
	e.hangUp(sessionID)
}

func (e *Engine) getSession(sessionID string) (*peerEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pe, ok := e.sessions[sessionID]
	return pe, ok
}

func (e *Engine) forgetSession(sessionID string) {
	e.mu.Lock()
	delete(e.sessions, sessionID)
	e.mu.Unlock()
}

func (e *Engine) notifyDone(sessionID string) {
	if e.notifier != nil {
		e.notifier.Notify(sessionID, dispatcher.DoneEvent{Transcode: "done"})
	}
}
