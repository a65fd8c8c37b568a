package session

import (
	"context"
	"sync"
)

// event is one unit of work for the run loop.
type event struct {
	epoch   uint64
	always  bool // applied even when the epoch has moved (Reset)
	apply   func(ctx context.Context, ep uint64)
	discard func() // optional; called instead of apply when the event is dropped
}

func (ev event) drop() {
	if ev.discard != nil {
		ev.discard()
	}
}

// eventQueue is an unbounded FIFO. Producers never block, so relay reads and
// transport callbacks cannot stall behind a slow negotiation step.
type eventQueue struct {
	mu     sync.Mutex
	items  []event
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pop removes the oldest event.
func (q *eventQueue) pop() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return event{}, false
	}
	ev := q.items[0]
	q.items[0] = event{}
	q.items = q.items[1:]
	return ev, true
}
