// Package dispatch routes inbound frames to topic, service, and action
// registries on a single designated goroutine.
package dispatch

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/perchlabs/buslink/internal/action"
	"github.com/perchlabs/buslink/internal/link"
	"github.com/perchlabs/buslink/internal/observability"
	"github.com/perchlabs/buslink/internal/protocol"
	"github.com/perchlabs/buslink/internal/protocol/frame"
	"github.com/perchlabs/buslink/internal/service"
	"github.com/perchlabs/buslink/internal/topic"
)

// Sender queues one frame for the peer.
type Sender interface {
	SendFrame(f frame.Frame) error
}

// Resetter tears the link down after a protocol violation.
type Resetter interface {
	Reset(reason string)
}

// Config tunes dispatcher behavior.
type Config struct {
	// ContinuationDepth bounds outstanding two-phase commands. The
	// default of one treats overlap as a protocol violation.
	ContinuationDepth int
}

// Dispatcher drains the incoming queue once per tick. Tick runs on one
// designated goroutine, which is also the only mutator of goal handles
// and the only consumer of pending continuations.
type Dispatcher struct {
	in       *link.Queue
	sender   Sender
	resetter Resetter
	topics   *topic.Registry
	calls    *service.Table
	actions  *action.Client
	servers  *action.Server
	cont     *continuationQueue
	logger   zerolog.Logger

	mu             sync.Mutex
	topicWaiters   []chan []string
	serviceWaiters []chan []string
}

func New(
	cfg Config,
	in *link.Queue,
	sender Sender,
	resetter Resetter,
	topics *topic.Registry,
	calls *service.Table,
	actions *action.Client,
	servers *action.Server,
	logger zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		in:       in,
		sender:   sender,
		resetter: resetter,
		topics:   topics,
		calls:    calls,
		actions:  actions,
		servers:  servers,
		cont:     newContinuationQueue(cfg.ContinuationDepth),
		logger:   logger.With().Str("component", "dispatch").Logger(),
	}
}

// Tick drains every frame currently queued, without blocking.
func (d *Dispatcher) Tick() {
	for {
		f, ok := d.in.TryPop()
		if !ok {
			return
		}
		d.dispatch(f)
	}
}

// OnDisconnected clears per-connection routing state. Continuations
// belong to the dead connection; their payload frames will never come.
func (d *Dispatcher) OnDisconnected() {
	if n := d.cont.Clear(); n > 0 {
		d.logger.Warn().Int("pending", n).Msg("dropped pending continuations on disconnect")
	}
	d.mu.Lock()
	d.topicWaiters = nil
	d.serviceWaiters = nil
	d.mu.Unlock()
}

// RequestTopics sends a topic-list request and returns a channel the
// dispatcher resolves when the response arrives. Buffered: abandoning
// the wait never blocks delivery.
func (d *Dispatcher) RequestTopics() (<-chan []string, error) {
	return d.requestList(protocol.CmdTopicList, &d.topicWaiters)
}

// RequestServices is RequestTopics for the peer's service names.
func (d *Dispatcher) RequestServices() (<-chan []string, error) {
	return d.requestList(protocol.CmdServiceList, &d.serviceWaiters)
}

func (d *Dispatcher) requestList(cmd string, waiters *[]chan []string) (<-chan []string, error) {
	env, err := protocol.EncodeCommand(cmd, protocol.NameList{})
	if err != nil {
		return nil, err
	}
	ch := make(chan []string, 1)
	d.mu.Lock()
	*waiters = append(*waiters, ch)
	d.mu.Unlock()
	if err := d.sender.SendFrame(env); err != nil {
		return nil, err
	}
	return ch, nil
}

func (d *Dispatcher) dispatch(f frame.Frame) {
	if f.IsKeepalive() {
		// never surfaces to application consumers
		observability.RecordDispatch("keepalive")
		return
	}
	// Payload frames carry topic names, never reserved ones, so a
	// reserved name while a continuation is pending is a new command,
	// not the awaited payload. A second two-phase announcement then
	// overflows the continuation queue and resets the link.
	if protocol.IsSystem(f.Name) {
		observability.RecordDispatch("system")
		d.system(f)
		return
	}
	if c, ok := d.cont.Pop(); ok {
		observability.RecordDispatch("continuation")
		d.fire(c, f)
		return
	}
	observability.RecordDispatch("topic")
	if n := d.topics.Dispatch(f.Name, f.Payload); n == 0 {
		d.logger.Debug().Str("topic", f.Name).Msg("frame for topic with no subscribers")
	}
}

func (d *Dispatcher) system(f frame.Frame) {
	switch f.Name {
	case protocol.CmdResponse:
		var corr protocol.Correlation
		if !d.decode(f, &corr) {
			return
		}
		d.pushContinuation(f.Name, func(pf frame.Frame) {
			// Resolve logs unknown ids itself; nothing else to do here
			_ = d.calls.Resolve(corr.ID, pf.Payload)
		})

	case protocol.CmdRequest:
		var corr protocol.Correlation
		if !d.decode(f, &corr) {
			return
		}
		d.pushContinuation(f.Name, func(pf frame.Frame) {
			d.serveRequest(corr, pf.Payload)
		})

	case protocol.CmdFeedback:
		var meta protocol.GoalMeta
		if !d.decode(f, &meta) {
			return
		}
		d.pushContinuation(f.Name, func(pf frame.Frame) {
			d.actions.HandleFeedback(meta, pf.Payload)
		})

	case protocol.CmdResult:
		var meta protocol.ResultMeta
		if !d.decode(f, &meta) {
			return
		}
		d.pushContinuation(f.Name, func(pf frame.Frame) {
			d.actions.HandleResult(meta, pf.Payload)
		})

	case protocol.CmdGoal:
		var meta protocol.GoalMeta
		if !d.decode(f, &meta) {
			return
		}
		d.pushContinuation(f.Name, func(pf frame.Frame) {
			d.servers.HandleGoal(meta, pf.Payload)
		})

	case protocol.CmdCancel:
		var meta protocol.GoalMeta
		if !d.decode(f, &meta) {
			return
		}
		d.servers.HandleCancel(meta)

	case protocol.CmdTopicList:
		d.handleList(f, d.topics.Topics, &d.topicWaiters)

	case protocol.CmdServiceList:
		d.handleList(f, d.topics.Services, &d.serviceWaiters)

	case protocol.CmdSubscribe, protocol.CmdUnsubscribe:
		// peer-side bookkeeping; nothing to track locally
		d.logger.Debug().Str("command", f.Name).Msg("peer subscription command ignored")

	default:
		d.logger.Warn().Str("command", f.Name).Msg("unknown system command dropped")
	}
}

// handleList answers a peer's list request or resolves local waiters
// with the peer's response. The Response flag distinguishes the forms;
// an empty Names slice is a legitimate response from a peer with
// nothing registered.
func (d *Dispatcher) handleList(f frame.Frame, local func() []string, waiters *[]chan []string) {
	var list protocol.NameList
	if !d.decode(f, &list) {
		return
	}
	if !list.Response {
		env, err := protocol.EncodeCommand(f.Name, protocol.NameList{Names: local(), Response: true})
		if err != nil {
			d.logger.Error().Str("command", f.Name).Err(err).Msg("encode list response")
			return
		}
		if err := d.sender.SendFrame(env); err != nil {
			d.logger.Warn().Str("command", f.Name).Err(err).Msg("send list response")
		}
		return
	}
	d.mu.Lock()
	chans := *waiters
	*waiters = nil
	d.mu.Unlock()
	for _, ch := range chans {
		select {
		case ch <- list.Names:
		default:
		}
	}
}

func (d *Dispatcher) serveRequest(corr protocol.Correlation, request []byte) {
	fn, ok := d.topics.Service(corr.Service)
	if !ok {
		d.logger.Warn().Str("service", corr.Service).Int64("id", corr.ID).Msg("request for unregistered service")
		return
	}
	response, err := d.invokeService(corr.Service, fn, request)
	if err != nil {
		d.logger.Warn().Str("service", corr.Service).Int64("id", corr.ID).Err(err).Msg("service handler failed")
		return
	}
	env, err := protocol.EncodeCommand(protocol.CmdResponse, protocol.Correlation{ID: corr.ID})
	if err != nil {
		d.logger.Error().Err(err).Msg("encode response envelope")
		return
	}
	if err := d.sender.SendFrame(env); err != nil {
		d.logger.Warn().Err(err).Msg("send response envelope")
		return
	}
	if err := d.sender.SendFrame(frame.Frame{Name: corr.Service, Payload: response}); err != nil {
		d.logger.Warn().Err(err).Msg("send response payload")
	}
}

func (d *Dispatcher) invokeService(name string, fn topic.ServiceFunc, request []byte) (response []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error().Str("service", name).Interface("panic", rec).Msg("service handler panicked")
			observability.RecordCallbackPanic()
			response, err = nil, errors.New("dispatch: service handler panicked")
		}
	}()
	return fn(request)
}

func (d *Dispatcher) decode(f frame.Frame, out any) bool {
	if err := protocol.DecodeParams(f.Payload, out); err != nil {
		d.logger.Warn().Str("command", f.Name).Err(err).Msg("malformed command envelope dropped")
		return false
	}
	return true
}

func (d *Dispatcher) pushContinuation(command string, fire func(f frame.Frame)) {
	if err := d.cont.Push(continuation{command: command, fire: fire}); err != nil {
		d.logger.Error().Str("command", command).Err(err).Msg("protocol violation")
		d.cont.Clear()
		d.resetter.Reset("two-phase command overlap")
	}
}

func (d *Dispatcher) fire(c continuation, f frame.Frame) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error().Str("command", c.command).Interface("panic", rec).Msg("continuation panicked")
			observability.RecordCallbackPanic()
		}
	}()
	c.fire(f)
}
