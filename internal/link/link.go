package link

import (
	"bufio"
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/perchlabs/buslink/internal/observability"
	"github.com/perchlabs/buslink/internal/protocol"
	"github.com/perchlabs/buslink/internal/protocol/frame"
)

var (
	ErrAddressRequired = errors.New("link: address required")
	ErrAlreadyStarted  = errors.New("link: already started")
	ErrClosed          = errors.New("link: closed")
)

// Hooks are invoked from the connection goroutine on state changes.
type Hooks struct {
	OnConnected    func()
	OnDisconnected func()
}

// Link owns one persistent TCP connection to the peer, reconnecting
// with backoff until Stop. Its lifecycle belongs to the caller:
// construct, Start, Stop.
type Link struct {
	addr   string
	cfg    Config
	logger zerolog.Logger
	hooks  Hooks

	out *Queue
	in  *Queue

	connected atomic.Bool
	hasError  atomic.Bool
	lastSend  atomic.Int64
	lastRecv  atomic.Int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
	reset   chan struct{}
	rng     *rand.Rand

	// connection goroutine only
	encodeBuf []byte
}

func New(addr string, cfg Config, logger zerolog.Logger, hooks Hooks) (*Link, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, ErrAddressRequired
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Link{
		addr:   addr,
		cfg:    cfg.WithDefaults(),
		logger: logger.With().Str("component", "link").Str("peer", addr).Logger(),
		hooks:  hooks,
		out:    NewQueue(),
		in:     NewQueue(),
		ctx:    ctx,
		cancel: cancel,
		reset:  make(chan struct{}, 1),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (l *Link) Start() error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	l.wg.Add(1)
	go l.run()
	return nil
}

func (l *Link) Stop() {
	l.cancel()
	l.wg.Wait()
}

// Send validates the frame synchronously and queues it for the
// connection goroutine. Frames queued while disconnected are flushed on
// the next connect unless a teardown discards them first.
func (l *Link) Send(name string, payload []byte) error {
	return l.SendFrame(frame.Frame{Name: name, Payload: payload})
}

func (l *Link) SendFrame(f frame.Frame) error {
	if l.ctx.Err() != nil {
		return ErrClosed
	}
	if err := frame.Validate(f, l.cfg.Limits); err != nil {
		return err
	}
	l.out.Push(f)
	observability.SetOutgoingDepth(l.out.Len())
	return nil
}

// Incoming is the queue the per-connection reader fills. The dispatcher
// drains it.
func (l *Link) Incoming() *Queue {
	return l.in
}

func (l *Link) Connected() bool { return l.connected.Load() }

func (l *Link) HasError() bool { return l.hasError.Load() }

func (l *Link) LastSend() time.Time { return time.Unix(0, l.lastSend.Load()) }

func (l *Link) LastReceive() time.Time { return time.Unix(0, l.lastRecv.Load()) }

func (l *Link) QueueDepth() int { return l.out.Len() }

// Reset tears down the current connection and lets the loop reconnect.
// Used by the dispatcher on protocol violations.
func (l *Link) Reset(reason string) {
	l.logger.Warn().Str("reason", reason).Msg("link reset requested")
	select {
	case l.reset <- struct{}{}:
	default:
	}
}

func (l *Link) run() {
	defer l.wg.Done()
	attempt := 0
	for {
		if l.ctx.Err() != nil {
			return
		}
		attempt++
		conn, err := l.dial()
		if err != nil {
			l.hasError.Store(true)
			l.logger.Warn().Int("attempt", attempt).Err(err).Msg("dial failed")
			if !l.sleepBackoff(attempt) {
				return
			}
			continue
		}
		attempt = 0
		l.serve(conn)
		observability.RecordReconnect()
		if l.ctx.Err() != nil {
			return
		}
		if !l.sleepBackoff(1) {
			return
		}
	}
}

func (l *Link) dial() (net.Conn, error) {
	dialer := net.Dialer{Timeout: l.cfg.ConnectTimeout}
	return dialer.DialContext(l.ctx, "tcp", l.addr)
}

// serve runs one connected session and returns on any failure, reset,
// or shutdown. Teardown order: close socket, reap reader, discard the
// outgoing queue, fire the disconnected hook.
func (l *Link) serve(conn net.Conn) {
	// stale reset requests belong to a previous connection
	select {
	case <-l.reset:
	default:
	}

	var readerWG sync.WaitGroup
	defer func() {
		wasConnected := l.connected.Swap(false)
		_ = conn.Close()
		readerWG.Wait()
		dropped := l.out.Discard()
		if dropped > 0 {
			l.logger.Warn().Int("dropped", dropped).Msg("discarded queued frames on disconnect")
			observability.RecordDroppedFrames(dropped)
		}
		observability.SetOutgoingDepth(0)
		if wasConnected {
			l.fireHook(l.hooks.OnDisconnected)
		}
	}()

	if err := l.writeFrame(conn, frame.Keepalive); err != nil {
		l.hasError.Store(true)
		l.logger.Warn().Err(err).Msg("initial keepalive failed")
		return
	}
	l.connected.Store(true)
	l.hasError.Store(false)
	l.logger.Info().Msg("connected")
	l.fireHook(l.hooks.OnConnected)

	readerErr := make(chan error, 1)
	readerWG.Add(1)
	go l.read(conn, readerErr, &readerWG)

	timer := time.NewTimer(l.cfg.PollInterval)
	defer timer.Stop()
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-l.reset:
			l.hasError.Store(true)
			return
		case err := <-readerErr:
			l.hasError.Store(true)
			if errors.Is(err, frame.ErrConnectionClosed) {
				l.logger.Info().Msg("peer closed connection")
			} else {
				l.logger.Warn().Err(err).Msg("reader failed")
			}
			return
		case <-l.out.Wake():
			if err := l.flush(conn); err != nil {
				l.hasError.Store(true)
				l.logger.Warn().Err(err).Msg("send failed")
				return
			}
		case <-timer.C:
			if time.Since(l.LastSend()) >= l.cfg.KeepaliveInterval {
				if err := l.writeFrame(conn, frame.Keepalive); err != nil {
					l.hasError.Store(true)
					l.logger.Warn().Err(err).Msg("keepalive failed")
					return
				}
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(l.cfg.PollInterval)
	}
}

func (l *Link) read(conn net.Conn, errCh chan<- error, wg *sync.WaitGroup) {
	defer wg.Done()
	dec := frame.NewDecoder(bufio.NewReader(conn), l.cfg.Limits)
	for {
		f, err := dec.Next()
		if err != nil {
			errCh <- err
			return
		}
		l.lastRecv.Store(time.Now().UnixNano())
		observability.RecordFrameReceived(frameKind(f))
		l.in.Push(f)
	}
}

func (l *Link) flush(conn net.Conn) error {
	for {
		f, ok := l.out.TryPop()
		if !ok {
			observability.SetOutgoingDepth(0)
			return nil
		}
		if err := l.writeFrame(conn, f); err != nil {
			return err
		}
	}
}

func (l *Link) writeFrame(conn net.Conn, f frame.Frame) error {
	buf, err := frame.Encode(l.encodeBuf[:0], f, l.cfg.Limits)
	if err != nil {
		return err
	}
	l.encodeBuf = buf
	if err := conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout)); err != nil {
		return err
	}
	if _, err := conn.Write(buf); err != nil {
		return err
	}
	l.lastSend.Store(time.Now().UnixNano())
	observability.RecordFrameSent(frameKind(f), len(buf))
	return nil
}

func (l *Link) sleepBackoff(attempt int) bool {
	delay := l.cfg.Backoff.Delay(attempt, l.rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-l.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (l *Link) fireHook(fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Msg("connection hook panicked")
			observability.RecordCallbackPanic()
		}
	}()
	fn()
}

func frameKind(f frame.Frame) string {
	switch {
	case f.IsKeepalive():
		return "keepalive"
	case protocol.IsSystem(f.Name):
		return "system"
	default:
		return "topic"
	}
}
