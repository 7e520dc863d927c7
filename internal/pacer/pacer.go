// Package pacer implements the replay pacer (component C8): it walks the
// ordered frame lists component C2 built, in wall-clock time, handing
// each frame off to a transport at the moment it was originally
// captured.
package pacer

import (
	"fmt"
	"os"
	"time"

	"github.com/kestrelmedia/recordplay/internal/frameindex"
	"github.com/kestrelmedia/recordplay/internal/logger"
	"github.com/kestrelmedia/recordplay/internal/mjr"
)

// idleFloor is how early the pacer emits a frame: it sleeps until
// idleFloor before a frame's due time and then emits it at once, so a
// frame leaves up to idleFloor ahead of schedule rather than late.
const idleFloor = 5 * time.Millisecond

// clockRate returns the RTP clock rate spec.md §3 fixes per medium/codec.
func clockRate(medium mjr.Medium, codec string) int {
	if medium == mjr.MediumVideo {
		return 90000
	}
	switch codec {
	case "pcma", "pcmu", "g722":
		return 8000
	default:
		return 48000
	}
}

// Transport is the external collaborator a replay hands emitted RTP to
// (the peer connection's outgoing track, per spec.md §1/§6).
type Transport interface {
	SendRTP(medium mjr.Medium, payload []byte) error
}

type cursor struct {
	medium    mjr.Medium
	codec     string
	file      *os.File
	list      *frameindex.List
	node      *frameindex.Packet
	firstTS   uint64
	clockRate int
	wallBase  time.Duration
	payloadPT uint8
}

func (c *cursor) targetElapsed() time.Duration {
	dt := float64(c.node.TSExt-c.firstTS) / float64(c.clockRate)
	return c.wallBase + time.Duration(dt*float64(time.Second))
}

// rewritePayloadType patches the RTP payload type byte in place, keeping
// the marker bit, so a replayed frame carries whatever payload type the
// current peer negotiated rather than the one it was captured with.
func rewritePayloadType(b []byte, pt uint8) {
	if len(b) < 2 {
		return
	}
	b[1] = (b[1] & 0x80) | (pt & 0x7f)
}

// Pacer replays up to one audio and one video capture file in lockstep,
// each frame scheduled at the wall-clock offset it was captured at.
type Pacer struct {
	transport Transport
	logger    logger.Writer

	audio *cursor
	video *cursor

	stop chan struct{}
	done chan struct{}

	onStopped func()
}

// Option configures one medium's stream for Open.
type Option struct {
	Path      string
	Medium    mjr.Medium
	PayloadPT uint8
}

// Open builds a Pacer from up to two capture files (opts may contain one
// or two entries, one per medium). onStopped, if non-nil, is called once
// replay terminates, whether by exhausting the files, by Stop, or by an
// emission error. It runs after the pacer goroutine has finished, so it
// may itself call Stop.
func Open(opts []Option, transport Transport, parent logger.Writer, onStopped func()) (*Pacer, error) {
	p := &Pacer{
		transport: transport,
		logger:    parent,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		onStopped: onStopped,
	}

	var firstFrames []int64
	cursors := make(map[mjr.Medium]*cursor)

	for _, opt := range opts {
		list, header, err := frameindex.Build(opt.Path)
		if err != nil {
			p.closeOpened(cursors)
			return nil, fmt.Errorf("pacer: %s: %w", opt.Path, err)
		}
		if list.Head == nil {
			continue
		}

		f, err := os.Open(opt.Path)
		if err != nil {
			p.closeOpened(cursors)
			return nil, fmt.Errorf("pacer: %s: %w", opt.Path, err)
		}

		cursors[opt.Medium] = &cursor{
			medium:    opt.Medium,
			codec:     header.Codec,
			file:      f,
			list:      list,
			node:      list.Head,
			firstTS:   list.Head.TSExt,
			clockRate: clockRate(opt.Medium, header.Codec),
			payloadPT: opt.PayloadPT,
		}
		firstFrames = append(firstFrames, header.FirstFrame)
	}

	if len(firstFrames) == 0 {
		return nil, fmt.Errorf("pacer: no capture files had any frames")
	}

	base := firstFrames[0]
	for _, ff := range firstFrames {
		if ff < base {
			base = ff
		}
	}

	// now that base is known, set each cursor's wall offset
	// from its own capture's FirstFrame relative to the earliest one.
	idx := 0
	for _, opt := range opts {
		c, ok := cursors[opt.Medium]
		if !ok {
			continue
		}
		c.wallBase = time.Duration(firstFrames[idx]-base) * time.Microsecond
		idx++
	}

	p.audio = cursors[mjr.MediumAudio]
	p.video = cursors[mjr.MediumVideo]

	go p.run()
	return p, nil
}

func (p *Pacer) closeOpened(cursors map[mjr.Medium]*cursor) {
	for _, c := range cursors {
		c.file.Close()
	}
}

func (p *Pacer) run() {
	defer func() {
		p.cleanup()
		close(p.done)
		if p.onStopped != nil {
			p.onStopped()
		}
	}()

	start := time.Now()

	for p.audio != nil || p.video != nil {
		next := p.earliestCursor()
		if next == nil {
			break
		}

		target := next.targetElapsed()
		elapsed := time.Since(start)
		dt := target - elapsed

		if dt > idleFloor {
			select {
			case <-time.After(dt - idleFloor):
			case <-p.stop:
				return
			}
			continue
		}

		if err := p.emit(next); err != nil {
			p.logger.Log(logger.Warn, "pacer: emit: %s", err)
			return
		}

		p.advancePast(next)

		select {
		case <-p.stop:
			return
		default:
		}
	}
}

// earliestCursor returns whichever stream's current node is due soonest.
func (p *Pacer) earliestCursor() *cursor {
	switch {
	case p.audio == nil:
		return p.video
	case p.video == nil:
		return p.audio
	case p.audio.targetElapsed() <= p.video.targetElapsed():
		return p.audio
	default:
		return p.video
	}
}

// emit sends the current node and every following node sharing its
// timestamp, for either medium (a frame split across several RTP packets
// must leave together).
func (p *Pacer) emit(c *cursor) error {
	for {
		payload, err := mjr.ReadAt(c.file, c.node.Offset, c.node.Len)
		if err != nil {
			return err
		}
		rewritePayloadType(payload, c.payloadPT)
		if err := p.transport.SendRTP(c.medium, payload); err != nil {
			return err
		}

		next := c.node.Next
		if next == nil || next.TSExt != c.node.TSExt {
			return nil
		}
		c.node = next
	}
}

// advancePast moves c onto the node after whatever emit just finished
// on (which may be several nodes ahead of where it started, for a
// grouped video frame), freeing consumed nodes as it goes.
func (p *Pacer) advancePast(c *cursor) {
	done := c.node
	next := done.Next
	c.list.Head = next
	if next != nil {
		next.Prev = nil
	}
	done.Next = nil

	if next == nil {
		switch c.medium {
		case mjr.MediumAudio:
			p.audio = nil
		default:
			p.video = nil
		}
		c.file.Close()
		return
	}
	c.node = next
}

// Stop requests termination and waits for the pacer goroutine to exit.
// It is idempotent: closing an already-closed channel would panic, so a
// second Stop just waits on the same done channel.
func (p *Pacer) Stop() {
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
	<-p.done
}

func (p *Pacer) cleanup() {
	if p.audio != nil {
		p.audio.list.Free()
		p.audio.file.Close()
	}
	if p.video != nil {
		p.video.list.Free()
		p.video.file.Close()
	}
}
