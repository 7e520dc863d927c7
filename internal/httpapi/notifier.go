// Package httpapi is the demo host: a gin-gonic HTTP surface exposing the
// wire protocol internal/dispatcher implements, adapted from the shape of
// the teacher's internal/api package (one gin.Engine, one route group,
// JSON in and out) to this plugin's session/request model instead of
// mediamtx's path/server inventory.
package httpapi

import (
	"context"
	"sync"
)

// eventQueue buffers one session's pending asynchronous results and
// DoneEvents between Dispatch enqueuing them and a client polling for
// them, since there's no persistent transport connection in this HTTP
// rework the way there is over a Janus long-poll or WebSocket handle.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events []interface{}
	closed bool
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *eventQueue) push(event interface{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.events = append(q.events, event)
	q.cond.Signal()
}

// pop blocks until an event is available, the queue is closed, or ctx is
// done, in which case ok is false.
func (q *eventQueue) pop(ctx context.Context) (event interface{}, ok bool) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.events) == 0 && !q.closed && ctx.Err() == nil {
		q.cond.Wait()
	}
	if len(q.events) == 0 {
		return nil, false
	}
	event = q.events[0]
	q.events = q.events[1:]
	return event, true
}

func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// notifier implements dispatcher.Notifier by fanning each session's
// events into its own eventQueue.
type notifier struct {
	mu     sync.Mutex
	queues map[string]*eventQueue
}

func newNotifier() *notifier {
	return &notifier{queues: make(map[string]*eventQueue)}
}

func (n *notifier) Notify(sessionID string, payload interface{}) {
	n.mu.Lock()
	q, ok := n.queues[sessionID]
	n.mu.Unlock()
	if !ok {
		return
	}
	q.push(payload)
}

func (n *notifier) register(sessionID string) *eventQueue {
	q := newEventQueue()
	n.mu.Lock()
	n.queues[sessionID] = q
	n.mu.Unlock()
	return q
}

func (n *notifier) forget(sessionID string) {
	n.mu.Lock()
	q, ok := n.queues[sessionID]
	delete(n.queues, sessionID)
	n.mu.Unlock()
	if ok {
		q.close()
	}
}
