package session

import (
	"sync"

	"github.com/kestrelmedia/recordplay/internal/logger"
)

// Role distinguishes a capturing session (ingesting RTP, writing MJR)
// from a replaying one (reading MJR, pacing RTP out).
type Role int

// Roles.
const (
	RoleNone Role = iota
	RoleCapturer
	RoleReplayer
)

// Capturer is the narrow contract a capturing session's media pipeline
// must satisfy so Session can tear it down uniformly; internal/capture.Writer
// implements it.
type Capturer interface {
	Close() error
}

// Replayer is the narrow contract a replaying session's pacer must
// satisfy; internal/pacer.Pacer implements it.
type Replayer interface {
	Stop()
}

// Session is one capture or replay peer session.
type Session struct {
	ID     string
	logger logger.Writer

	mu    sync.Mutex
	state State
	role  Role

	capturer Capturer
	replayer Replayer

	hangingUp bool
	destroyed bool

	onDestroy func()
}

// New allocates a Fresh Session. onDestroy, if non-nil, is invoked exactly
// once, after teardown completes, to let the owner release any external
// reference (for example a catalog entry's refcount).
func New(id string, parent logger.Writer, onDestroy func()) *Session {
	return &Session{
		ID:        id,
		logger:    parent,
		state:     Fresh,
		onDestroy: onDestroy,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MarkMediaReady transitions Fresh -> MediaReady, once negotiation has
// produced a usable media session.
func (s *Session) MarkMediaReady() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Fresh {
		return &ErrInvalidTransition{From: s.state, To: MediaReady}
	}
	s.state = MediaReady
	return nil
}

// StartCapturing transitions MediaReady -> Capturing and attaches the
// capture pipeline that HangUp will later close.
func (s *Session) StartCapturing(capturer Capturer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != MediaReady {
		return &ErrInvalidTransition{From: s.state, To: Capturing}
	}
	s.role = RoleCapturer
	s.capturer = capturer
	s.state = Capturing
	return nil
}

// StartReplaying transitions MediaReady -> Replaying and attaches the
// pacer that HangUp will later stop.
func (s *Session) StartReplaying(replayer Replayer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != MediaReady {
		return &ErrInvalidTransition{From: s.state, To: Replaying}
	}
	s.role = RoleReplayer
	s.replayer = replayer
	s.state = Replaying
	return nil
}

// Role reports which role was attached, or RoleNone before one has been.
func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// HangUp tears the session down. It is idempotent and safe to call
// concurrently (from a request handler and from a transport-level
// disconnect callback, for instance): only the first caller performs the
// actual teardown, everyone else observes it as already in progress or
// complete.
func (s *Session) HangUp() {
	s.mu.Lock()
	if s.hangingUp {
		s.mu.Unlock()
		return
	}
	s.hangingUp = true
	s.state = HangingUp
	capturer := s.capturer
	replayer := s.replayer
	s.mu.Unlock()

	if capturer != nil {
		if err := capturer.Close(); err != nil {
			s.logger.Log(logger.Warn, "session %s: close capturer: %s", s.ID, err)
		}
	}
	if replayer != nil {
		replayer.Stop()
	}

	s.mu.Lock()
	s.destroyed = true
	s.state = Destroyed
	onDestroy := s.onDestroy
	s.mu.Unlock()

	if onDestroy != nil {
		onDestroy()
	}
}

// Destroyed reports whether HangUp has fully completed.
func (s *Session) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}
