// Package buslink is a message-oriented transport over one persistent
// TCP connection. It layers topic publish/subscribe, request/response
// service calls, and long-running goals with feedback and cancellation
// on top of a length-framed wire protocol.
package buslink

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/perchlabs/buslink/internal/action"
	"github.com/perchlabs/buslink/internal/dispatch"
	"github.com/perchlabs/buslink/internal/link"
	"github.com/perchlabs/buslink/internal/protocol"
	"github.com/perchlabs/buslink/internal/service"
	"github.com/perchlabs/buslink/internal/topic"
)

var (
	ErrNotConnected   = errors.New("buslink: not connected")
	ErrAlreadyStarted = errors.New("buslink: already started")
)

// Re-exported goal types so callers never import internal packages.
type (
	GoalHandle = action.Handle
	GoalStatus = action.Status
	GoalFunc   = action.GoalFunc
	CancelFunc = action.CancelFunc
)

const (
	GoalPending   = action.StatusPending
	GoalActive    = action.StatusActive
	GoalPreempted = action.StatusPreempted
	GoalSucceeded = action.StatusSucceeded
	GoalAborted   = action.StatusAborted
	GoalCanceled  = action.StatusCanceled
	GoalRejected  = action.StatusRejected
)

// NewGoalHandle is what a server-side goal handler returns to accept a
// goal.
var NewGoalHandle = action.NewGoalHandle

// Config tunes the client. Zero values fall back to defaults.
type Config struct {
	Address          string
	Link             link.Config
	Dispatch         dispatch.Config
	DispatchInterval time.Duration
}

func DefaultConfig(address string) Config {
	return Config{
		Address:          address,
		Link:             link.DefaultConfig(),
		DispatchInterval: 10 * time.Millisecond,
	}
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithConnectionHooks observes link state changes. Hooks run on the
// connection goroutine; keep them short.
func WithConnectionHooks(onConnected, onDisconnected func()) Option {
	return func(c *Client) {
		c.onConnected = onConnected
		c.onDisconnected = onDisconnected
	}
}

// Client owns the link, the dispatcher, and every registry. Lifecycle
// belongs to the caller: New, Start, Stop.
type Client struct {
	cfg    Config
	logger zerolog.Logger

	link       *link.Link
	topics     *topic.Registry
	calls      *service.Table
	actions    *action.Client
	servers    *action.Server
	dispatcher *dispatch.Dispatcher

	onConnected    func()
	onDisconnected func()

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
}

func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.DispatchInterval <= 0 {
		cfg.DispatchInterval = 10 * time.Millisecond
	}
	c := &Client{
		cfg:    cfg,
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	l, err := link.New(cfg.Address, cfg.Link, c.logger, link.Hooks{
		OnConnected:    c.handleConnected,
		OnDisconnected: c.handleDisconnected,
	})
	if err != nil {
		return nil, err
	}
	c.link = l
	c.topics = topic.NewRegistry(c.logger)
	c.calls = service.NewTable(c.logger)
	c.actions = action.NewClient(l, c.logger)
	c.servers = action.NewServer(l, c.logger)
	c.dispatcher = dispatch.New(cfg.Dispatch, l.Incoming(), l, l, c.topics, c.calls, c.actions, c.servers, c.logger)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c, nil
}

// Start launches the connection goroutine and the dispatch loop.
func (c *Client) Start() error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if err := c.link.Start(); err != nil {
		return err
	}
	c.wg.Add(1)
	go c.dispatchLoop()
	return nil
}

// Stop shuts everything down and waits for both goroutines to exit.
func (c *Client) Stop() {
	c.cancel()
	c.link.Stop()
	c.wg.Wait()
}

// dispatchLoop is the single designated goroutine that mutates goal
// handles and consumes continuations.
func (c *Client) dispatchLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.DispatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.link.Incoming().Wake():
			c.dispatcher.Tick()
		case <-ticker.C:
			c.dispatcher.Tick()
		}
	}
}

func (c *Client) handleConnected() {
	// replay subscriptions lost with the previous connection
	for _, name := range c.topics.Topics() {
		c.sendSubscribe(name)
	}
	if c.onConnected != nil {
		c.onConnected()
	}
}

func (c *Client) handleDisconnected() {
	c.dispatcher.OnDisconnected()
	if c.onDisconnected != nil {
		c.onDisconnected()
	}
}

// Publish queues one payload on a topic.
func (c *Client) Publish(topicName string, payload []byte) error {
	if err := protocol.CheckTopicName(topicName); err != nil {
		return err
	}
	return c.link.Send(topicName, payload)
}

// Subscribe registers a callback and announces the subscription to the
// peer. The announcement is replayed on every reconnect.
func (c *Client) Subscribe(topicName string, fn func(payload []byte)) error {
	if err := c.topics.Subscribe(topicName, fn); err != nil {
		return err
	}
	c.sendSubscribe(topicName)
	return nil
}

// Unsubscribe drops all local callbacks for the topic and tells the
// peer to stop sending it.
func (c *Client) Unsubscribe(topicName string) error {
	if err := protocol.CheckTopicName(topicName); err != nil {
		return err
	}
	c.topics.Unsubscribe(topicName)
	env, err := protocol.EncodeCommand(protocol.CmdUnsubscribe, protocol.Subscription{Topic: topicName})
	if err != nil {
		return err
	}
	return c.link.SendFrame(env)
}

func (c *Client) sendSubscribe(topicName string) {
	env, err := protocol.EncodeCommand(protocol.CmdSubscribe, protocol.Subscription{Topic: topicName})
	if err != nil {
		c.logger.Error().Str("topic", topicName).Err(err).Msg("encode subscribe")
		return
	}
	if err := c.link.SendFrame(env); err != nil {
		c.logger.Warn().Str("topic", topicName).Err(err).Msg("queue subscribe")
	}
}

// RegisterService answers the peer's requests for a named service.
func (c *Client) RegisterService(name string, fn func(request []byte) ([]byte, error)) error {
	return c.topics.RegisterService(name, fn)
}

func (c *Client) UnregisterService(name string) {
	c.topics.UnregisterService(name)
}

// Call sends a request and suspends the calling goroutine until the
// matching response arrives or ctx expires. A deadline cancels only the
// wait: the pending entry is removed, and a late response logs a
// correlation miss. A call in flight across a disconnect is never
// resumed; bound it with ctx.
func (c *Client) Call(ctx context.Context, serviceName string, request []byte) ([]byte, error) {
	if err := protocol.CheckTopicName(serviceName); err != nil {
		return nil, err
	}
	if !c.link.Connected() {
		return nil, ErrNotConnected
	}

	id, resume := c.calls.Register()
	env, err := protocol.EncodeCommand(protocol.CmdRequest, protocol.Correlation{Service: serviceName, ID: id})
	if err != nil {
		c.calls.Remove(id)
		return nil, err
	}
	if err := c.link.SendFrame(env); err != nil {
		c.calls.Remove(id)
		return nil, err
	}
	if err := c.link.Send(serviceName, request); err != nil {
		c.calls.Remove(id)
		return nil, err
	}

	select {
	case response := <-resume:
		return response, nil
	case <-ctx.Done():
		c.calls.Remove(id)
		return nil, ctx.Err()
	}
}

// SendGoal announces a goal and returns its handle immediately. An
// empty goalID gets a generated one.
func (c *Client) SendGoal(actionName, goalID string, goal []byte) (*GoalHandle, error) {
	return c.actions.SendGoal(actionName, goalID, goal)
}

// CancelGoal asks the peer to cancel. The handle transitions only when
// a result frame arrives.
func (c *Client) CancelGoal(actionName, goalID string) error {
	return c.actions.Cancel(actionName, goalID)
}

func (c *Client) OnFeedback(actionName string, fn func(goalID string, payload []byte)) error {
	return c.actions.OnFeedback(actionName, fn)
}

func (c *Client) OnResult(actionName string, fn func(goalID string, payload []byte)) error {
	return c.actions.OnResult(actionName, fn)
}

// Goal returns the handle for an active goal id.
func (c *Client) Goal(goalID string) (*GoalHandle, bool) {
	return c.actions.Goal(goalID)
}

// ActiveGoals returns a snapshot of client-side goals not yet terminal.
func (c *Client) ActiveGoals() []*GoalHandle {
	return c.actions.ActiveGoals()
}

// RegisterActionServer installs goal and cancel handlers for an action.
// Re-registration replaces the handlers.
func (c *Client) RegisterActionServer(actionName string, onGoal GoalFunc, onCancel CancelFunc) error {
	return c.servers.Register(actionName, onGoal, onCancel)
}

// SucceedGoal completes a server-side goal with the succeeded status.
func (c *Client) SucceedGoal(actionName, goalID string, result []byte) error {
	return c.servers.Succeed(actionName, goalID, result)
}

// AbortGoal completes a server-side goal with the aborted status.
func (c *Client) AbortGoal(actionName, goalID string, result []byte) error {
	return c.servers.Abort(actionName, goalID, result)
}

// CancelServerGoal completes a server-side goal with the canceled
// status, typically from a cancel handler.
func (c *Client) CancelServerGoal(actionName, goalID string, result []byte) error {
	return c.servers.Cancel(actionName, goalID, result)
}

// PublishFeedback reports progress on a server-side goal.
func (c *Client) PublishFeedback(actionName, goalID string, feedback []byte) error {
	return c.servers.PublishFeedback(actionName, goalID, feedback)
}

// RequestTopics asks the peer for its topic names.
func (c *Client) RequestTopics(ctx context.Context) ([]string, error) {
	return c.awaitList(ctx, c.dispatcher.RequestTopics)
}

// RequestServices asks the peer for its service names.
func (c *Client) RequestServices(ctx context.Context) ([]string, error) {
	return c.awaitList(ctx, c.dispatcher.RequestServices)
}

func (c *Client) awaitList(ctx context.Context, request func() (<-chan []string, error)) ([]string, error) {
	if !c.link.Connected() {
		return nil, ErrNotConnected
	}
	ch, err := request()
	if err != nil {
		return nil, err
	}
	select {
	case names := <-ch:
		return names, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) Connected() bool { return c.link.Connected() }

func (c *Client) HasError() bool { return c.link.HasError() }

func (c *Client) LastSend() time.Time { return c.link.LastSend() }

func (c *Client) LastReceive() time.Time { return c.link.LastReceive() }

func (c *Client) QueueDepth() int { return c.link.QueueDepth() }

// Topics lists locally subscribed topic names.
func (c *Client) Topics() []string { return c.topics.Topics() }

// Services lists locally registered service names.
func (c *Client) Services() []string { return c.topics.Services() }

// ServerGoalIDs lists in-flight server-side goal ids for an action.
func (c *Client) ServerGoalIDs(actionName string) []string {
	return c.servers.ActiveGoalIDs(actionName)
}
