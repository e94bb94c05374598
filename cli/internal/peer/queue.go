package peer

import "sync"

// eventQueue is an unbounded FIFO. push never blocks, so channel
// callbacks and timers can report from any goroutine.
type eventQueue struct {
	mu    sync.Mutex
	items []event
	ready chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{ready: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// drain returns every queued event in order.
func (q *eventQueue) drain() []event {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
