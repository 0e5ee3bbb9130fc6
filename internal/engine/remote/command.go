package remote

import (
	"context"
	"errors"
	"sync"

	"github.com/joeblew999/quakemap/internal/engine"
	"github.com/joeblew999/quakemap/internal/style"
)

// Op names a browser-side engine call.
type Op string

const (
	OpCreate          Op = "create"
	OpAddSource       Op = "addSource"
	OpAddLayer        Op = "addLayer"
	OpSubscribe       Op = "subscribe"
	OpUnsubscribe     Op = "unsubscribe"
	OpSetFeatureState Op = "setFeatureState"
	OpResize          Op = "resize"
	OpRemove          Op = "remove"
)

// Command is one engine call for the browser to apply, in Seq order.
type Command struct {
	Seq uint64 `json:"seq"`
	Op  Op     `json:"op"`

	Options *engine.Options `json:"options,omitempty"`

	// addSource
	Name   string        `json:"name,omitempty"`
	Source *style.Source `json:"source,omitempty"`

	// addLayer
	Layer  *style.Layer `json:"layer,omitempty"`
	Before string       `json:"before,omitempty"`

	// subscribe, unsubscribe
	Event   engine.EventType `json:"event,omitempty"`
	LayerID string           `json:"layerId,omitempty"`

	// setFeatureState
	Feature *engine.FeatureRef `json:"feature,omitempty"`
	State   engine.State       `json:"state,omitempty"`
}

// ErrClosed is returned by Next once the queue is closed and drained.
var ErrClosed = errors.New("command queue closed")

// Queue is an unbounded FIFO of commands with a single consumer. Push never
// blocks, so engine calls made from event handlers cannot stall on a slow
// browser.
type Queue struct {
	mu      sync.Mutex
	seq     uint64
	pending []Command
	closed  bool
	notify  chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends c, assigning its sequence number. It reports false once the
// queue is closed.
func (q *Queue) Push(c Command) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.seq++
	c.Seq = q.seq
	q.pending = append(q.pending, c)
	q.mu.Unlock()
	q.wake()
	return true
}

// Requeue puts undelivered commands back in front of the pending ones,
// keeping their sequence numbers. It works on a closed queue too, so a final
// batch survives a dropped stream.
func (q *Queue) Requeue(cmds []Command) {
	if len(cmds) == 0 {
		return
	}
	q.mu.Lock()
	q.pending = append(append([]Command(nil), cmds...), q.pending...)
	q.mu.Unlock()
	q.wake()
}

// Close stops accepting commands. Pending commands stay readable.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of undelivered commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Next blocks until commands are available and returns all of them. It returns
// ErrClosed after the queue is closed and drained, or ctx.Err().
func (q *Queue) Next(ctx context.Context) ([]Command, error) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			batch := q.pending
			q.pending = nil
			q.mu.Unlock()
			return batch, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}
