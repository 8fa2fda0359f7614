package action

import (
	"sync"
	"time"
)

// Handle tracks one outstanding goal on the client side. It is mutated
// only by the dispatcher goroutine; callers read through the lock. The
// handle stays valid and inspectable after the goal leaves the active
// index.
type Handle struct {
	mu           sync.RWMutex
	action       string
	id           string
	status       Status
	goal         []byte
	lastFeedback []byte
	result       []byte
	createdAt    time.Time
}

func newHandle(action, id string, goal []byte) *Handle {
	return &Handle{
		action:    action,
		id:        id,
		status:    StatusPending,
		goal:      goal,
		createdAt: time.Now(),
	}
}

// NewGoalHandle builds a handle for a goal accepted by a server-side
// handler. Starts Active: the server is already executing it.
func NewGoalHandle(action, id string, goal []byte) *Handle {
	h := newHandle(action, id, goal)
	h.status = StatusActive
	return h
}

func (h *Handle) Action() string { return h.action }

func (h *Handle) ID() string { return h.id }

func (h *Handle) CreatedAt() time.Time { return h.createdAt }

func (h *Handle) Goal() []byte { return h.goal }

func (h *Handle) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// Active reports whether the goal has not reached a terminal status.
func (h *Handle) Active() bool {
	return !h.Status().Terminal()
}

func (h *Handle) LastFeedback() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastFeedback
}

func (h *Handle) Result() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.result
}

// feedback records a feedback payload and promotes Pending to Active.
// Terminal handles are left untouched.
func (h *Handle) feedback(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.Terminal() {
		return
	}
	h.lastFeedback = payload
	if h.status == StatusPending {
		h.status = StatusActive
	}
}

// complete records the terminal status and result. It reports false if
// the handle was already terminal: no transition out of a terminal
// state is ever observable.
func (h *Handle) complete(status Status, result []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.Terminal() {
		return false
	}
	h.status = status
	h.result = result
	return true
}
