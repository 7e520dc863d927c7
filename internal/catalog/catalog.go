// Package catalog implements the capture catalog (component C6): an
// in-memory index of finished and in-progress captures, kept in sync with
// a directory of ".nfo" descriptors (and the ".mjr" files they describe)
// by explicit or event-driven reconciliation.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kestrelmedia/recordplay/internal/logger"
	"github.com/kestrelmedia/recordplay/internal/mjr"
)

// fixedPayloadType returns the RTP payload type a codec is statically
// assigned under RFC 3551, or (0, false) when it must be negotiated
// dynamically.
func fixedPayloadType(codec string) (uint8, bool) {
	switch strings.ToLower(codec) {
	case "pcmu":
		return 0, true
	case "pcma":
		return 8, true
	case "g722":
		return 9, true
	default:
		return 0, false
	}
}

// dynamicPayloadType is the payload type this plugin assigns codecs that
// don't have a static RFC 3551 number, per medium.
func dynamicPayloadType(isVideo bool) uint8 {
	if isVideo {
		return 100
	}
	return 111
}

// PayloadType resolves the payload type a codec should be offered with.
func PayloadType(codec string, isVideo bool) uint8 {
	if pt, ok := fixedPayloadType(codec); ok {
		return pt
	}
	return dynamicPayloadType(isVideo)
}

// Entry is one capture known to the catalog, whether finished (backed by
// an .nfo descriptor) or still being written (registered directly by a
// capturing session, ahead of any descriptor reaching disk).
type Entry struct {
	ID   string
	Name string
	Date time.Time

	AudioPath  string
	AudioCodec string
	VideoPath  string
	VideoCodec string

	// Legacy is set when either file was produced by the old MJR
	// generation, whose fixed codec assumptions (opus/vp8) can't be
	// trusted as precisely as a current-generation info header.
	Legacy bool

	// Viewers counts sessions currently replaying this entry.
	Viewers int

	refs         int
	seenThisScan bool
	nfoPath      string
}

// HasAudio and HasVideo report which media this entry carries.
func (e *Entry) HasAudio() bool { return e.AudioPath != "" }
func (e *Entry) HasVideo() bool { return e.VideoPath != "" }

// Completed reports whether this entry is backed by an on-disk ".nfo"
// descriptor, spec.md §3's completed flag: false while a capturing
// session still owns it, true once that session's teardown has written
// the descriptor (WriteDescriptor).
func (e *Entry) Completed() bool { return e.nfoPath != "" }

// Catalog is the process-wide, mutex-guarded map of known captures.
type Catalog struct {
	dir    string
	logger logger.Writer

	mu      sync.Mutex
	entries map[string]*Entry

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New allocates a Catalog rooted at dir. It does not scan until Scan is
// called explicitly.
func New(dir string, parent logger.Writer) *Catalog {
	return &Catalog{
		dir:     dir,
		logger:  parent,
		entries: make(map[string]*Entry),
	}
}

// Register adds or replaces an entry directly (used by a capturing
// session as soon as it knows its id/name, ahead of any .nfo file being
// written), and increments its refcount so a concurrent Scan can't prune
// it out from under the session.
func (c *Catalog) Register(e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.refs++
	e.seenThisScan = true
	c.entries[e.ID] = e
}

// RegisterNew adds e only if its id isn't already present, atomically
// under the catalog mutex (spec.md §4.5/§3: "id uniqueness is enforced
// under a catalog-wide mutex"). It returns false on collision, in which
// case e was not inserted and the caller should pick a different id (for
// a server-chosen id) or report 420 already-exists (for a client-proposed
// one).
func (c *Catalog) RegisterNew(e *Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[e.ID]; exists {
		return false
	}
	e.refs++
	e.seenThisScan = true
	c.entries[e.ID] = e
	return true
}

// Release decrements an entry's refcount; an entry no longer backed by an
// on-disk descriptor and with a zero refcount is dropped on the next scan.
func (c *Catalog) Release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok && e.refs > 0 {
		e.refs--
	}
}

// Get returns a copy-free pointer to the entry, or nil.
func (c *Catalog) Get(id string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[id]
}

// List returns every known entry, in no particular order.
func (c *Catalog) List() []*Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out
}

// Scan walks the directory for ".nfo" descriptors and reconciles them
// against the in-memory map: every descriptor found is (re)loaded, keeping
// an existing entry's refcount and viewer count,
// entries whose descriptor has disappeared and whose refcount is zero are
// removed. Entries registered directly by an in-progress session (no .nfo
// yet) are left alone as long as their refcount stays above zero.
func (c *Catalog) Scan() error {
	c.mu.Lock()
	for _, e := range c.entries {
		e.seenThisScan = e.nfoPath == "" && e.refs > 0
	}
	c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("catalog: scan %s: %w", c.dir, err)
	}

	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".nfo") {
			continue
		}

		path := filepath.Join(c.dir, de.Name())
		entry, err := c.loadDescriptor(path)
		if err != nil {
			c.logger.Log(logger.Warn, "catalog: skipping %s: %s", path, err)
			continue
		}

		c.mu.Lock()
		entry.seenThisScan = true
		if existing, ok := c.entries[entry.ID]; ok {
			entry.refs = existing.refs
			entry.Viewers = existing.Viewers
		}
		c.entries[entry.ID] = entry
		c.mu.Unlock()
	}

	c.mu.Lock()
	for id, e := range c.entries {
		if !e.seenThisScan && e.refs == 0 {
			delete(c.entries, id)
		}
	}
	c.mu.Unlock()

	return nil
}

// loadDescriptor parses one `.nfo` file per spec.md §4.5's scan procedure:
// a single INI section named by the decimal capture id, required keys
// `name`/`date`, at least one of `audio`/`video`. Codec is never read from
// the descriptor (it carries no such field) -- it is determined by opening
// the referenced MJR file and reading its info header, the ground truth
// spec.md §4.5 calls for ("determine codec by opening the MJR and reading
// its info header").
func (c *Catalog) loadDescriptor(path string) (*Entry, error) {
	doc, err := readNFOFile(path)
	if err != nil {
		return nil, err
	}

	id, fields, ok := doc.section()
	if !ok || id == "" {
		return nil, fmt.Errorf("missing capture id section")
	}

	name, ok := fields["name"]
	if !ok || name == "" {
		return nil, fmt.Errorf("missing name")
	}

	dateStr, ok := fields["date"]
	if !ok {
		return nil, fmt.Errorf("missing date")
	}

	audioFn := fields["audio"]
	videoFn := fields["video"]
	if audioFn == "" && videoFn == "" {
		return nil, fmt.Errorf("neither audio nor video present")
	}

	e := &Entry{ID: id, Name: name, nfoPath: path}

	if t, err := time.ParseInLocation("2006-01-02 15:04:05", dateStr, time.Local); err == nil {
		e.Date = t
	}

	dir := filepath.Dir(path)

	if audioFn != "" {
		e.AudioPath = filepath.Join(dir, audioFn)
		if err := c.probeCodec(e, mjr.MediumAudio); err != nil {
			c.logger.Log(logger.Warn, "catalog: probe audio codec for %s: %s", e.AudioPath, err)
		}
	}
	if videoFn != "" {
		e.VideoPath = filepath.Join(dir, videoFn)
		if err := c.probeCodec(e, mjr.MediumVideo); err != nil {
			c.logger.Log(logger.Warn, "catalog: probe video codec for %s: %s", e.VideoPath, err)
		}
	}

	return e, nil
}

// probeCodec opens the medium's MJR file and records its codec (and
// whether it was written in the legacy, codec-less generation) onto e.
func (c *Catalog) probeCodec(e *Entry, medium mjr.Medium) error {
	path := e.AudioPath
	if medium == mjr.MediumVideo {
		path = e.VideoPath
	}

	r, err := mjr.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	h := r.Header()
	if medium == mjr.MediumVideo {
		e.VideoCodec = h.Codec
	} else {
		e.AudioCodec = h.Codec
	}
	if h.Legacy {
		e.Legacy = true
	}
	return nil
}

// SetCodecs records which codec a capturing session observed on its
// audio/video track (an empty value leaves that medium's codec
// unchanged), under the catalog's mutex so a concurrent Scan/List never
// reads a half-updated entry. A zero-value argument is ignored.
func (c *Catalog) SetCodecs(id, audioCodec, videoCodec string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return
	}
	if audioCodec != "" {
		e.AudioCodec = audioCodec
	}
	if videoCodec != "" {
		e.VideoCodec = videoCodec
	}
}

// SetMediaPaths records the files a capturing session actually created
// (empty string for a medium that never received a packet, per spec.md
// invariant 4), under the catalog's mutex. It is called once, at the end
// of capture, just before WriteDescriptor.
func (c *Catalog) SetMediaPaths(id, audioPath, videoPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return
	}
	e.AudioPath = audioPath
	e.VideoPath = videoPath
}

// IncrementViewers and DecrementViewers adjust an entry's viewer count
// under the catalog's mutex, as a replay session attaches/detaches.
func (c *Catalog) IncrementViewers(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		e.Viewers++
	}
}

func (c *Catalog) DecrementViewers(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok && e.Viewers > 0 {
		e.Viewers--
	}
}

// WriteDescriptor persists e's .nfo file, the counterpart to loadDescriptor.
func (c *Catalog) WriteDescriptor(e *Entry) error {
	path := filepath.Join(c.dir, e.ID+".nfo")
	if err := writeNFOFile(path, e); err != nil {
		return err
	}
	c.mu.Lock()
	e.nfoPath = path
	c.mu.Unlock()
	return nil
}

// Watch starts an fsnotify watch on the catalog directory and triggers a
// Scan on every event for a ".nfo" file, debounced by interval. It
// supplements the explicit Scan calls (at engine startup and on the
// update verb) with near-immediate pickup of externally dropped or
// removed captures.
func (c *Catalog) Watch(interval time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog: watch: %w", err)
	}
	if err := watcher.Add(c.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("catalog: watch: %w", err)
	}

	c.watcher = watcher
	c.done = make(chan struct{})

	go c.watchLoop(interval)
	return nil
}

func (c *Catalog) watchLoop(interval time.Duration) {
	defer close(c.done)

	var pending bool
	timer := time.NewTimer(interval)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, ".nfo") {
				continue
			}
			if !pending {
				pending = true
				timer.Reset(interval)
			}

		case <-timer.C:
			pending = false
			if err := c.Scan(); err != nil {
				c.logger.Log(logger.Warn, "catalog: watch-triggered scan: %s", err)
			}

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Log(logger.Warn, "catalog: watch error: %s", err)
		}
	}
}

// StopWatch tears down the fsnotify watch started by Watch, if any.
func (c *Catalog) StopWatch() {
	if c.watcher == nil {
		return
	}
	c.watcher.Close()
	<-c.done
}
