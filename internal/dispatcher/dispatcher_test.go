package dispatcher

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrelmedia/recordplay/internal/logger"
)

type stubHandler struct {
	listResp []CaptureSummary
	listErr  error

	updateErr error

	configureResp ConfigureResponse
	configureErr  error

	transcodeResp TranscodeResponse
	transcodeErr  error

	playResp PlayResponse
	playErr  error

	startResp StartResponse
	startErr  error

	stopResp StopResponse
	stopErr  error
}

func (s *stubHandler) List() ([]CaptureSummary, error) { return s.listResp, s.listErr }
func (s *stubHandler) Update() error                    { return s.updateErr }
func (s *stubHandler) Configure(ConfigureRequest) (ConfigureResponse, error) {
	return s.configureResp, s.configureErr
}
func (s *stubHandler) Transcode(string, TranscodeRequest) (TranscodeResponse, error) {
	return s.transcodeResp, s.transcodeErr
}
func (s *stubHandler) Play(string, PlayRequest) (PlayResponse, error) {
	return s.playResp, s.playErr
}
func (s *stubHandler) Start(string, StartRequest) (StartResponse, error) {
	return s.startResp, s.startErr
}
func (s *stubHandler) Stop(string) (StopResponse, error) { return s.stopResp, s.stopErr }

type recordingNotifier struct {
	mu  sync.Mutex
	got []interface{}
	ch  chan interface{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{ch: make(chan interface{}, 16)}
}

func (n *recordingNotifier) Notify(sessionID string, payload interface{}) {
	n.mu.Lock()
	n.got = append(n.got, payload)
	n.mu.Unlock()
	n.ch <- payload
}

func testLogger(t *testing.T) logger.Writer {
	t.Helper()
	l, err := logger.New(logger.Debug, nil, "", "")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestDispatchEmptyRequest(t *testing.T) {
	d := New(&stubHandler{}, nil, 8, testLogger(t))
	defer d.Close()

	resp := d.Dispatch("s1", nil)
	env, ok := resp.(*ErrorEnvelope)
	require.True(t, ok)
	require.Equal(t, ErrCodeNoMessage, env.ErrorCode)
}

func TestDispatchInvalidJSON(t *testing.T) {
	d := New(&stubHandler{}, nil, 8, testLogger(t))
	defer d.Close()

	resp := d.Dispatch("s1", []byte("{not json"))
	env, ok := resp.(*ErrorEnvelope)
	require.True(t, ok)
	require.Equal(t, ErrCodeInvalidJSON, env.ErrorCode)
}

func TestDispatchUnknownVerb(t *testing.T) {
	d := New(&stubHandler{}, nil, 8, testLogger(t))
	defer d.Close()

	resp := d.Dispatch("s1", []byte(`{"request":"frobnicate"}`))
	env, ok := resp.(*ErrorEnvelope)
	require.True(t, ok)
	require.Equal(t, ErrCodeInvalidRequest, env.ErrorCode)
}

func TestDispatchListEmpty(t *testing.T) {
	d := New(&stubHandler{listResp: nil}, nil, 8, testLogger(t))
	defer d.Close()

	resp := d.Dispatch("s1", []byte(`{"request":"list"}`))
	list, ok := resp.(ListResponse)
	require.True(t, ok)
	require.Equal(t, "list", list.Transcode)
	require.Empty(t, list.List)
}

func TestDispatchUpdate(t *testing.T) {
	d := New(&stubHandler{}, nil, 8, testLogger(t))
	defer d.Close()

	resp := d.Dispatch("s1", []byte(`{"request":"update"}`))
	require.Equal(t, UpdateResponse{Transcode: "ok"}, resp)
}

func TestDispatchTranscodeMissingName(t *testing.T) {
	d := New(&stubHandler{}, nil, 8, testLogger(t))
	defer d.Close()

	resp := d.Dispatch("s1", []byte(`{"request":"transcode","offer":"v=0"}`))
	env, ok := resp.(*ErrorEnvelope)
	require.True(t, ok)
	require.Equal(t, ErrCodeMissingElement, env.ErrorCode)
}

func TestDispatchTranscodePendingThenDelivered(t *testing.T) {
	notifier := newRecordingNotifier()
	h := &stubHandler{transcodeResp: TranscodeResponse{Transcode: "transcoding", ID: "42", Answer: "v=0"}}
	d := New(h, notifier, 8, testLogger(t))
	defer d.Close()

	resp := d.Dispatch("s1", []byte(`{"request":"transcode","name":"x","offer":"v=0"}`))
	pending, ok := resp.(PendingResponse)
	require.True(t, ok)
	require.Equal(t, "transcoding", pending.Status)

	select {
	case delivered := <-notifier.ch:
		final, ok := delivered.(TranscodeResponse)
		require.True(t, ok)
		require.Equal(t, "42", final.ID)
	case <-time.After(time.Second):
		t.Fatal("transcode result never delivered")
	}
}

func TestDispatchTranscodeErrorDeliveredAsEnvelope(t *testing.T) {
	notifier := newRecordingNotifier()
	h := &stubHandler{transcodeErr: fmt.Errorf("already exists: %w", ErrAlreadyExists)}
	d := New(h, notifier, 8, testLogger(t))
	defer d.Close()

	d.Dispatch("s1", []byte(`{"request":"transcode","name":"x","offer":"v=0","id":"42"}`))

	select {
	case delivered := <-notifier.ch:
		env, ok := delivered.(*ErrorEnvelope)
		require.True(t, ok)
		require.Equal(t, ErrCodeAlreadyExists, env.ErrorCode)
	case <-time.After(time.Second):
		t.Fatal("error never delivered")
	}
}

func TestDispatchPlayMissingID(t *testing.T) {
	d := New(&stubHandler{}, nil, 8, testLogger(t))
	defer d.Close()

	resp := d.Dispatch("s1", []byte(`{"request":"play"}`))
	env, ok := resp.(*ErrorEnvelope)
	require.True(t, ok)
	require.Equal(t, ErrCodeMissingElement, env.ErrorCode)
}

func TestDispatchStartMissingAnswer(t *testing.T) {
	d := New(&stubHandler{}, nil, 8, testLogger(t))
	defer d.Close()

	resp := d.Dispatch("s1", []byte(`{"request":"start"}`))
	env, ok := resp.(*ErrorEnvelope)
	require.True(t, ok)
	require.Equal(t, ErrCodeMissingElement, env.ErrorCode)
}

func TestDispatchStopIsAlwaysEnqueued(t *testing.T) {
	notifier := newRecordingNotifier()
	h := &stubHandler{stopResp: StopResponse{Transcode: "stopped"}}
	d := New(h, notifier, 8, testLogger(t))
	defer d.Close()

	resp := d.Dispatch("s1", []byte(`{"request":"stop"}`))
	pending, ok := resp.(PendingResponse)
	require.True(t, ok)
	require.Equal(t, "stopped", pending.Status)

	select {
	case delivered := <-notifier.ch:
		require.Equal(t, StopResponse{Transcode: "stopped"}, delivered)
	case <-time.After(time.Second):
		t.Fatal("stop result never delivered")
	}
}

func TestCodeForErrorMapsSentinels(t *testing.T) {
	require.Equal(t, ErrCodeNotFound, codeForError(ErrNotFound))
	require.Equal(t, ErrCodeAlreadyExists, codeForError(ErrAlreadyExists))
	require.Equal(t, ErrCodeInvalidState, codeForError(ErrInvalidState))
	require.Equal(t, ErrCodeInvalidSDP, codeForError(ErrInvalidSDP))
	require.Equal(t, ErrCodeInvalidCapture, codeForError(ErrInvalidCapture))
	require.Equal(t, ErrCodeUnknown, codeForError(fmt.Errorf("boom")))
}
