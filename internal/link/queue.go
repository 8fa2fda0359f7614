package link

import (
	"sync"

	"github.com/perchlabs/buslink/internal/protocol/frame"
)

// Queue is a concurrent FIFO of frames with a wake signal. Producers are
// arbitrary goroutines; the consumer is single (the connection goroutine
// for the outgoing queue, the dispatcher for the incoming one).
type Queue struct {
	mu    sync.Mutex
	items []frame.Frame
	wake  chan struct{}
}

func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

func (q *Queue) Push(f frame.Frame) {
	q.mu.Lock()
	q.items = append(q.items, f)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// TryPop removes the oldest frame without blocking.
func (q *Queue) TryPop() (frame.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return frame.Frame{}, false
	}
	f := q.items[0]
	q.items[0] = frame.Frame{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return f, true
}

// Discard empties the queue and reports how many frames were dropped.
func (q *Queue) Discard() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Wake signals after every Push. Capacity one: a receive may cover any
// number of pushes, so consumers drain with TryPop until empty.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}
