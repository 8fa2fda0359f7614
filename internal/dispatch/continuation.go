package dispatch

import (
	"errors"
	"sync"

	"github.com/perchlabs/buslink/internal/protocol/frame"
)

var ErrContinuationOverflow = errors.New("dispatch: two-phase command overlap")

// continuation pairs a two-phase command with the frame that completes
// it. The frame's name is ignored on consumption: it is payload, not a
// routing key.
type continuation struct {
	command string
	fire    func(f frame.Frame)
}

// continuationQueue is a bounded FIFO of pending continuations. The
// default capacity of one makes overlapping two-phase announcements a
// protocol violation; a deeper capacity would admit them in order
// without changing consumption semantics.
type continuationQueue struct {
	mu       sync.Mutex
	items    []continuation
	capacity int
}

func newContinuationQueue(capacity int) *continuationQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &continuationQueue{capacity: capacity}
}

func (q *continuationQueue) Push(c continuation) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		return ErrContinuationOverflow
	}
	q.items = append(q.items, c)
	return nil
}

func (q *continuationQueue) Pop() (continuation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return continuation{}, false
	}
	c := q.items[0]
	q.items = q.items[1:]
	return c, true
}

func (q *continuationQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

func (q *continuationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
