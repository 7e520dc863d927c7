package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrelmedia/recordplay/internal/logger"
)

func testLogger(t *testing.T) logger.Writer {
	t.Helper()
	l, err := logger.New(logger.Debug, nil, "", "")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

type countingCapturer struct{ closed int }

func (c *countingCapturer) Close() error { c.closed++; return nil }

type countingReplayer struct{ stopped int }

func (c *countingReplayer) Stop() { c.stopped++ }

func TestCapturingLifecycle(t *testing.T) {
	s := New("s1", testLogger(t), nil)
	require.Equal(t, Fresh, s.State())

	require.NoError(t, s.MarkMediaReady())
	require.Equal(t, MediaReady, s.State())

	cap := &countingCapturer{}
	require.NoError(t, s.StartCapturing(cap))
	require.Equal(t, Capturing, s.State())
	require.Equal(t, RoleCapturer, s.Role())

	s.HangUp()
	require.Equal(t, Destroyed, s.State())
	require.Equal(t, 1, cap.closed)
	require.True(t, s.Destroyed())
}

func TestReplayingLifecycle(t *testing.T) {
	s := New("s2", testLogger(t), nil)
	require.NoError(t, s.MarkMediaReady())

	rep := &countingReplayer{}
	require.NoError(t, s.StartReplaying(rep))
	require.Equal(t, Replaying, s.State())

	s.HangUp()
	require.Equal(t, 1, rep.stopped)
}

func TestInvalidTransitionsAreRejected(t *testing.T) {
	s := New("s3", testLogger(t), nil)
	err := s.StartCapturing(&countingCapturer{})
	require.Error(t, err)
	require.Equal(t, Fresh, s.State())

	require.NoError(t, s.MarkMediaReady())
	err = s.MarkMediaReady()
	require.Error(t, err)
}

func TestHangUpIsIdempotentUnderConcurrency(t *testing.T) {
	s := New("s4", testLogger(t), nil)
	require.NoError(t, s.MarkMediaReady())
	cap := &countingCapturer{}
	require.NoError(t, s.StartCapturing(cap))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.HangUp()
		}()
	}
	wg.Wait()

	require.Equal(t, 1, cap.closed, "capturer must be closed exactly once regardless of concurrent HangUp calls")
}

func TestOnDestroyCalledExactlyOnce(t *testing.T) {
	var calls int
	var mu sync.Mutex
	s := New("s5", testLogger(t), func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.NoError(t, s.MarkMediaReady())
	require.NoError(t, s.StartCapturing(&countingCapturer{}))

	s.HangUp()
	s.HangUp()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, calls)
}
