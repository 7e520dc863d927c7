// Package dispatcher implements the request dispatcher (component C9):
// routing of the two synchronous verbs (list, update) and the four
// asynchronous ones (transcode, play, start, stop), plus configure, onto
// a Handler supplied by the engine. Asynchronous verbs run on a single
// FIFO worker (internal/asyncwriter, the same primitive the teacher uses
// for its per-stream write queues) so catalog/session mutation stays
// serialized per spec.md §5; the calling goroutine gets an immediate
// "pending" acknowledgement and the real result is delivered later
// through a Notifier.
package dispatcher

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kestrelmedia/recordplay/internal/asyncwriter"
	"github.com/kestrelmedia/recordplay/internal/logger"
)

// Handler is implemented by the engine (internal/plugin) and carries out
// the actual work behind each verb. Dispatch never touches session or
// catalog state directly; it only decodes/validates the wire request and
// routes to these methods, mapping the sentinel errors in errors.go to
// the protocol's numeric codes.
type Handler interface {
	List() ([]CaptureSummary, error)
	Update() error
	Configure(req ConfigureRequest) (ConfigureResponse, error)
	Transcode(sessionID string, req TranscodeRequest) (TranscodeResponse, error)
	Play(sessionID string, req PlayRequest) (PlayResponse, error)
	Start(sessionID string, req StartRequest) (StartResponse, error)
	Stop(sessionID string) (StopResponse, error)
}

// Notifier receives the eventual result of an asynchronous verb, and any
// out-of-band event (for example DoneEvent on peer-connection loss).
type Notifier interface {
	Notify(sessionID string, payload interface{})
}

// Dispatcher routes decoded requests to a Handler.
type Dispatcher struct {
	handler  Handler
	notifier Notifier
	logger   logger.Writer
	worker   *asyncwriter.Writer
}

// New allocates a Dispatcher and starts its worker goroutine. Call Close
// to drain it (placing the sentinel exit that terminates the worker, per
// spec.md §4.8).
func New(handler Handler, notifier Notifier, queueSize int, parent logger.Writer) *Dispatcher {
	d := &Dispatcher{
		handler:  handler,
		notifier: notifier,
		logger:   parent,
		worker:   asyncwriter.New(queueSize, parent),
	}
	d.worker.Start()
	return d
}

// Close stops the worker goroutine, waiting for any in-flight callback to
// finish first.
func (d *Dispatcher) Close() {
	d.worker.Stop()
}

// envelope is just enough of a decoded request to learn its verb; each
// verb's own fields are then decoded from the same raw bytes into the
// verb-specific request struct.
type envelope struct {
	Request string `json:"request"`
}

// Dispatch decodes raw and routes it to the matching Handler method. The
// return value is always something JSON-serializable: a success reply, a
// PendingResponse for a just-enqueued async verb, or an *ErrorEnvelope.
// It never returns a Go error — by design, every outcome (including a
// malformed request) is a wire-level response per spec.md §6.
func (d *Dispatcher) Dispatch(sessionID string, raw []byte) interface{} {
	if len(raw) == 0 {
		return errorEnvelope(ErrCodeNoMessage, errors.New("no message"))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return errorEnvelope(ErrCodeInvalidJSON, err)
	}

	switch env.Request {
	case "list":
		return d.dispatchList()
	case "update":
		return d.dispatchUpdate()
	case "configure":
		return d.dispatchConfigure(raw)
	case "transcode":
		return d.dispatchTranscode(sessionID, raw)
	case "play":
		return d.dispatchPlay(sessionID, raw)
	case "start":
		return d.dispatchStart(sessionID, raw)
	case "stop":
		return d.dispatchStop(sessionID)
	case "":
		return errorEnvelope(ErrCodeInvalidRequest, errors.New("missing request verb"))
	default:
		return errorEnvelope(ErrCodeInvalidRequest, fmt.Errorf("unrecognized request %q", env.Request))
	}
}

func (d *Dispatcher) dispatchList() interface{} {
	list, err := d.handler.List()
	if err != nil {
		return handlerErrorEnvelope(err)
	}
	if list == nil {
		list = []CaptureSummary{}
	}
	return ListResponse{Transcode: "list", List: list}
}

func (d *Dispatcher) dispatchUpdate() interface{} {
	if err := d.handler.Update(); err != nil {
		return handlerErrorEnvelope(err)
	}
	return UpdateResponse{Transcode: "ok"}
}

func (d *Dispatcher) dispatchConfigure(raw []byte) interface{} {
	var req ConfigureRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorEnvelope(ErrCodeInvalidJSON, err)
	}
	resp, err := d.handler.Configure(req)
	if err != nil {
		return handlerErrorEnvelope(err)
	}
	resp.Transcode = "ok"
	return resp
}

func (d *Dispatcher) dispatchTranscode(sessionID string, raw []byte) interface{} {
	var req TranscodeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorEnvelope(ErrCodeInvalidJSON, err)
	}
	if req.Name == "" {
		return errorEnvelope(ErrCodeMissingElement, errors.New("missing name"))
	}
	if req.Offer == "" {
		return errorEnvelope(ErrCodeMissingElement, errors.New("missing offer"))
	}

	d.worker.Push(func() error {
		resp, err := d.handler.Transcode(sessionID, req)
		d.deliver(sessionID, resp, err)
		return nil
	})
	return PendingResponse{Transcode: "pending", Status: "transcoding"}
}

func (d *Dispatcher) dispatchPlay(sessionID string, raw []byte) interface{} {
	var req PlayRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorEnvelope(ErrCodeInvalidJSON, err)
	}
	if req.ID == "" {
		return errorEnvelope(ErrCodeMissingElement, errors.New("missing id"))
	}

	d.worker.Push(func() error {
		resp, err := d.handler.Play(sessionID, req)
		d.deliver(sessionID, resp, err)
		return nil
	})
	return PendingResponse{Transcode: "pending", Status: "preparing"}
}

func (d *Dispatcher) dispatchStart(sessionID string, raw []byte) interface{} {
	var req StartRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorEnvelope(ErrCodeInvalidJSON, err)
	}
	if req.Answer == "" {
		return errorEnvelope(ErrCodeMissingElement, errors.New("missing answer"))
	}

	d.worker.Push(func() error {
		resp, err := d.handler.Start(sessionID, req)
		d.deliver(sessionID, resp, err)
		return nil
	})
	return PendingResponse{Transcode: "pending", Status: "playing"}
}

func (d *Dispatcher) dispatchStop(sessionID string) interface{} {
	d.worker.Push(func() error {
		resp, err := d.handler.Stop(sessionID)
		d.deliver(sessionID, resp, err)
		return nil
	})
	return PendingResponse{Transcode: "pending", Status: "stopped"}
}

func (d *Dispatcher) deliver(sessionID string, resp interface{}, err error) {
	if d.notifier == nil {
		return
	}
	if err != nil {
		d.notifier.Notify(sessionID, handlerErrorEnvelope(err))
		return
	}
	d.notifier.Notify(sessionID, resp)
}
