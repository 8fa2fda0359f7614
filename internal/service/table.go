// Package service owns request/response correlation for service calls.
package service

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/perchlabs/buslink/internal/observability"
)

var ErrUnknownCorrelation = errors.New("service: unknown correlation id")

// Table maps outstanding correlation ids to suspended callers. IDs are
// monotonically increasing and never reused while outstanding.
type Table struct {
	mu      sync.Mutex
	next    atomic.Int64
	pending map[int64]chan []byte
	logger  zerolog.Logger
}

func NewTable(logger zerolog.Logger) *Table {
	return &Table{
		pending: make(map[int64]chan []byte),
		logger:  logger.With().Str("component", "service").Logger(),
	}
}

// Register allocates the next id and a buffered resume channel for it.
// The buffer lets the dispatcher resolve without blocking even if the
// caller has already abandoned the wait.
func (t *Table) Register() (int64, <-chan []byte) {
	id := t.next.Add(1)
	ch := make(chan []byte, 1)
	t.mu.Lock()
	t.pending[id] = ch
	n := len(t.pending)
	t.mu.Unlock()
	observability.SetPendingCalls(n)
	return id, ch
}

// Resolve resumes exactly the matching caller and removes the entry.
// An unknown id is logged once and dropped.
func (t *Table) Resolve(id int64, payload []byte) error {
	t.mu.Lock()
	ch, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	n := len(t.pending)
	t.mu.Unlock()
	observability.SetPendingCalls(n)
	if !ok {
		t.logger.Warn().Int64("id", id).Msg("response for unknown correlation id")
		return ErrUnknownCorrelation
	}
	ch <- payload
	return nil
}

// Remove abandons a pending call, typically on caller deadline. A
// response arriving later resolves to a logged correlation miss.
func (t *Table) Remove(id int64) {
	t.mu.Lock()
	delete(t.pending, id)
	n := len(t.pending)
	t.mu.Unlock()
	observability.SetPendingCalls(n)
}

func (t *Table) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
