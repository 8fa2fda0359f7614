package action

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/perchlabs/buslink/internal/observability"
	"github.com/perchlabs/buslink/internal/protocol"
	"github.com/perchlabs/buslink/internal/protocol/frame"
)

var (
	ErrActionNameRequired = errors.New("action: action name required")
	ErrNilListener        = errors.New("action: nil listener")
	ErrDuplicateGoalID    = errors.New("action: goal id already active")
)

// Sender queues one frame for the peer.
type Sender interface {
	SendFrame(f frame.Frame) error
}

// FeedbackFunc observes one feedback payload for a goal.
type FeedbackFunc func(goalID string, payload []byte)

// ResultFunc observes one terminal result payload for a goal.
type ResultFunc func(goalID string, payload []byte)

// Client drives goals we originate. Listener registration happens on
// caller goroutines; event delivery happens on the dispatcher
// goroutine only.
type Client struct {
	mu       sync.RWMutex
	sender   Sender
	logger   zerolog.Logger
	feedback map[string][]FeedbackFunc
	result   map[string][]ResultFunc
	active   map[string]*Handle
}

func NewClient(sender Sender, logger zerolog.Logger) *Client {
	return &Client{
		sender:   sender,
		logger:   logger.With().Str("component", "action_client").Logger(),
		feedback: make(map[string][]FeedbackFunc),
		result:   make(map[string][]ResultFunc),
		active:   make(map[string]*Handle),
	}
}

// SendGoal announces a goal and queues its payload. The returned handle
// is live immediately; the call never blocks on the peer. An empty
// goalID gets a generated one.
func (c *Client) SendGoal(action, goalID string, goal []byte) (*Handle, error) {
	if err := protocol.CheckTopicName(action); err != nil {
		return nil, err
	}
	if goalID == "" {
		goalID = uuid.NewString()
	}

	h := newHandle(action, goalID, goal)
	c.mu.Lock()
	if _, exists := c.active[goalID]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrDuplicateGoalID, goalID)
	}
	c.active[goalID] = h
	n := len(c.active)
	c.mu.Unlock()
	observability.SetActiveGoals("client", n)

	env, err := protocol.EncodeCommand(protocol.CmdGoal, protocol.GoalMeta{Action: action, GoalID: goalID})
	if err != nil {
		c.dropActive(goalID)
		return nil, err
	}
	if err := c.sender.SendFrame(env); err != nil {
		c.dropActive(goalID)
		return nil, err
	}
	if err := c.sender.SendFrame(frame.Frame{Name: action, Payload: goal}); err != nil {
		c.dropActive(goalID)
		return nil, err
	}
	return h, nil
}

// Cancel asks the peer to cancel a goal. Advisory only: the handle
// transitions when (and only when) a result frame arrives.
func (c *Client) Cancel(action, goalID string) error {
	env, err := protocol.EncodeCommand(protocol.CmdCancel, protocol.GoalMeta{Action: action, GoalID: goalID})
	if err != nil {
		return err
	}
	return c.sender.SendFrame(env)
}

func (c *Client) OnFeedback(action string, fn FeedbackFunc) error {
	if action == "" {
		return ErrActionNameRequired
	}
	if fn == nil {
		return ErrNilListener
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feedback[action] = append(c.feedback[action], fn)
	return nil
}

func (c *Client) OnResult(action string, fn ResultFunc) error {
	if action == "" {
		return ErrActionNameRequired
	}
	if fn == nil {
		return ErrNilListener
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result[action] = append(c.result[action], fn)
	return nil
}

// Goal returns the handle for an active goal id.
func (c *Client) Goal(goalID string) (*Handle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.active[goalID]
	return h, ok
}

// ActiveGoals returns a snapshot copy, never a live view.
func (c *Client) ActiveGoals() []*Handle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Handle, 0, len(c.active))
	for _, h := range c.active {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// HandleFeedback delivers one feedback event. Dispatcher goroutine only.
func (c *Client) HandleFeedback(meta protocol.GoalMeta, payload []byte) {
	c.mu.RLock()
	h := c.active[meta.GoalID]
	fns := c.feedback[meta.Action]
	c.mu.RUnlock()

	if h != nil {
		h.feedback(payload)
	} else {
		c.logger.Debug().Str("action", meta.Action).Str("goal_id", meta.GoalID).Msg("feedback for unknown goal")
	}
	if len(fns) == 0 {
		c.logger.Debug().Str("action", meta.Action).Msg("feedback with no listeners")
		return
	}
	for _, fn := range fns {
		c.invokeFeedback(meta, fn, payload)
	}
}

// HandleResult delivers one terminal result. Dispatcher goroutine only.
func (c *Client) HandleResult(meta protocol.ResultMeta, payload []byte) {
	status, err := ParseStatus(meta.Status)
	if err != nil {
		c.logger.Warn().Str("action", meta.Action).Str("goal_id", meta.GoalID).Err(err).Msg("result with invalid status")
		status = StatusSucceeded
	}
	if !status.Terminal() {
		c.logger.Warn().Str("status", status.String()).Msg("result with non-terminal status, treating as succeeded")
		status = StatusSucceeded
	}

	c.mu.RLock()
	h := c.active[meta.GoalID]
	fns := c.result[meta.Action]
	c.mu.RUnlock()

	if h == nil {
		c.logger.Debug().Str("action", meta.Action).Str("goal_id", meta.GoalID).Msg("result for unknown goal")
	} else if h.complete(status, payload) {
		c.dropActive(meta.GoalID)
	}
	if len(fns) == 0 {
		c.logger.Debug().Str("action", meta.Action).Msg("result with no listeners")
		return
	}
	for _, fn := range fns {
		c.invokeResult(meta, fn, payload)
	}
}

func (c *Client) dropActive(goalID string) {
	c.mu.Lock()
	delete(c.active, goalID)
	n := len(c.active)
	c.mu.Unlock()
	observability.SetActiveGoals("client", n)
}

func (c *Client) invokeFeedback(meta protocol.GoalMeta, fn FeedbackFunc, payload []byte) {
	defer c.recoverListener(meta.Action, "feedback")
	fn(meta.GoalID, payload)
}

func (c *Client) invokeResult(meta protocol.ResultMeta, fn ResultFunc, payload []byte) {
	defer c.recoverListener(meta.Action, "result")
	fn(meta.GoalID, payload)
}

func (c *Client) recoverListener(action, kind string) {
	if rec := recover(); rec != nil {
		c.logger.Error().Str("action", action).Str("kind", kind).Interface("panic", rec).Msg("listener panicked")
		observability.RecordCallbackPanic()
	}
}
