package capture

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrelmedia/recordplay/internal/logger"
	"github.com/kestrelmedia/recordplay/internal/mjr"
)

func testLogger(t *testing.T) logger.Writer {
	t.Helper()
	l, err := logger.New(logger.Debug, nil, "", "")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

type fakeSink struct {
	mu       sync.Mutex
	opened   bool
	closed   bool
	pushes   int
	failPush bool
}

func (s *fakeSink) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true
	return nil
}

func (s *fakeSink) Push(_ mjr.Medium, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes++
	if s.failPush {
		return errors.New("sink unavailable")
	}
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) snapshot() (opened, closed bool, pushes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened, s.closed, s.pushes
}

func TestWriterOnlyCreatesFilesForMediaReceived(t *testing.T) {
	dir := t.TempDir()

	w := New(dir, "rec-1", nil, 16, testLogger(t))
	w.Push(mjr.MediumAudio, "opus", []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	require.NoError(t, w.Close())

	audio, video := w.Paths()
	require.NotEmpty(t, audio)
	require.Empty(t, video)

	_, err := os.Stat(filepath.Join(dir, "rec-1-video.mjr"))
	require.True(t, os.IsNotExist(err))
}

func TestWriterFansOutToDiskAndSink(t *testing.T) {
	dir := t.TempDir()
	sink := &fakeSink{}

	w := New(dir, "rec-2", sink, 16, testLogger(t))
	for i := 0; i < 5; i++ {
		w.Push(mjr.MediumVideo, "vp8", []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	}
	require.NoError(t, w.Close())

	opened, closed, pushes := sink.snapshot()
	require.True(t, opened)
	require.True(t, closed)
	require.Equal(t, 5, pushes)

	audio, video := w.Paths()
	require.Empty(t, audio)
	require.NotEmpty(t, video)
}

func TestSinkFailureDoesNotAbortDiskWriter(t *testing.T) {
	dir := t.TempDir()
	sink := &fakeSink{failPush: true}

	w := New(dir, "rec-3", sink, 16, testLogger(t))
	for i := 0; i < 3; i++ {
		w.Push(mjr.MediumAudio, "opus", []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	}
	require.NoError(t, w.Close())

	audio, _ := w.Paths()
	require.NotEmpty(t, audio)

	r, err := mjr.OpenReader(audio)
	require.NoError(t, err)
	defer r.Close()

	count := 0
	for {
		_, err := r.Next()
		if err != nil {
			break
		}
		count++
	}
	require.Equal(t, 3, count)
}

func TestDiskFailureDoesNotAbortSink(t *testing.T) {
	dir := t.TempDir()
	sink := &fakeSink{}

	// Use a directory that doesn't exist to force mjr.Open to fail.
	w := New(filepath.Join(dir, "does-not-exist"), "rec-4", sink, 16, testLogger(t))
	w.Push(mjr.MediumAudio, "opus", []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	w.Push(mjr.MediumAudio, "opus", []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	require.NoError(t, w.Close())

	_, _, pushes := sink.snapshot()
	require.Equal(t, 2, pushes)
}
