package scanner

import (
	"context"
	"sync"
)

type eventKind int

const (
	evEnumerate eventKind = iota + 1
	evSelect
	evStart
	evStop
	evSwitch
	evClose
	evSync
	evDecoded
	evFailed
)

func (k eventKind) String() string {
	switch k {
	case evEnumerate:
		return "enumerate"
	case evSelect:
		return "select"
	case evStart:
		return "start"
	case evStop:
		return "stop"
	case evSwitch:
		return "switch"
	case evClose:
		return "close"
	case evSync:
		return "sync"
	case evDecoded:
		return "decoded"
	case evFailed:
		return "failed"
	}
	return "unknown"
}

// event is either a command from a caller or a frame outcome from an engine.
type event struct {
	kind eventKind

	// Commands.
	ctx      context.Context
	cameraID string
	reply    chan error // buffered, size 1

	// Frames.
	sessionID string
	text      string
	err       error
}

func (e event) isCommand() bool {
	return e.reply != nil
}

// eventQueue is an unbounded FIFO shared by callers, engine callbacks and
// the manager loop. Engine callbacks must never block, so the queue grows
// instead of applying backpressure.
//
// The signal channel has a buffer of one so that multiple enqueues coalesce
// into a single wake-up for the loop.
type eventQueue struct {
	mu     sync.Mutex
	events []event
	closed bool
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends e. Returns false once the queue is closed.
func (q *eventQueue) Enqueue(e event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return event{}, false
	}

	e := q.events[0]
	// Clear the slot so the backing array does not pin contexts and errors.
	q.events[0] = event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Wait returns a channel that is signalled when events may be available
// and closed when the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close rejects further enqueues and returns whatever was still pending.
func (q *eventQueue) Close() []event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.signal)

	pending := q.events
	q.events = nil
	return pending
}
