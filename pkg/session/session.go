package session

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/PorkStudios/PorkLib-sub015/pkg/channel"
	"github.com/PorkStudios/PorkLib-sub015/pkg/framing"
	"github.com/PorkStudios/PorkLib-sub015/pkg/future"
	"github.com/PorkStudios/PorkLib-sub015/pkg/log"
	"github.com/PorkStudios/PorkLib-sub015/pkg/pipeline"
	"github.com/PorkStudios/PorkLib-sub015/pkg/scheduler"
	"github.com/PorkStudios/PorkLib-sub015/pkg/transport"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// State is the lifecycle state of a session.
type State int32

const (
	// StateNew is a session whose transport has not been started.
	StateNew State = iota
	// StateOpen is a session exchanging messages.
	StateOpen
	// StateClosing is a session draining towards StateClosed.
	StateClosing
	// StateClosed is a session whose transport is gone.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Transport is what a session needs to know about the engine that produced
// its connection. transport.Engine implements it.
type Transport interface {
	Name() string
	Reliabilities() wire.ReliabilitySet
	NewFramer() framing.Framer
}

// Session is one peer connection.
type Session struct {
	id          string
	conn        transport.Conn
	framer      framing.Framer
	transport   string
	supported   wire.ReliabilitySet
	pipeline    *pipeline.Pipeline[*Session]
	channels    *channel.Table
	sched       *scheduler.Scheduler
	ownSched    bool
	config      Config
	logger      *slog.Logger
	plog        log.Logger
	keepAlive   *keepAlive
	createdAt   time.Time
	handshakes  handshakes
	state       atomic.Int32
	closed      *future.Promise[struct{}]
	closeOnce   sync.Once
	finalOnce   sync.Once
	reasonMu    sync.Mutex
	closeReason error

	// dispatchMu is read-held while a received packet is dispatched.
	dispatchMu sync.RWMutex

	attachMu   sync.RWMutex
	attachment any
}

// New creates a session for conn. The pipeline is built from handlers with
// the session as its subject. The session does not read from conn until
// Start is called.
func New(conn transport.Conn, t Transport, handlers *pipeline.Builder[*Session], cfg Config) (*Session, error) {
	if conn == nil || t == nil {
		return nil, errors.New("session: conn and transport are required")
	}
	cfg.applyDefaults()

	supported := t.Reliabilities()
	if err := wire.CheckReliability(cfg.DefaultReliability, t.Name(), supported); err != nil {
		return nil, fmt.Errorf("default reliability: %w", err)
	}

	s := &Session{
		id:        uuid.New().String(),
		conn:      conn,
		framer:    t.NewFramer(),
		transport: t.Name(),
		supported: supported,
		sched:     cfg.Scheduler,
		config:    cfg,
		plog:      cfg.ProtocolLogger,
		createdAt: time.Now(),
		closed:    future.NewPromise[struct{}](),
	}
	s.handshakes.init()
	s.logger = cfg.Logger.With("session_id", s.id, "transport", s.transport)
	if s.sched == nil {
		s.sched = scheduler.New(scheduler.Config{Logger: cfg.Logger})
		s.ownSched = true
	}
	if l, ok := s.framer.(framing.Loggable); ok && s.plog != nil {
		l.SetLogger(s.plog, s.id)
	}
	s.channels = channel.NewTable(cfg.DefaultReliability, s.channelChanged)

	if handlers == nil {
		handlers = pipeline.NewBuilder[*Session]()
	}
	p, err := handlers.Build(s, edge{})
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	s.pipeline = p
	if cfg.KeepAlive.Interval > 0 {
		s.keepAlive = newKeepAlive(s, cfg.KeepAlive)
	}
	return s, nil
}

// Start begins reading from the transport, fires SessionOpened and starts
// keep-alive.
func (s *Session) Start() error {
	if !s.state.CompareAndSwap(int32(StateNew), int32(StateOpen)) {
		return fmt.Errorf("session: start in state %s", s.State())
	}
	s.logState(StateNew, StateOpen, "")
	if err := s.conn.Start(connHandler{s}); err != nil {
		err = fmt.Errorf("start transport: %w", err)
		s.conn.Abort()
		s.finalize(err)
		return err
	}
	s.pipeline.FireOpened()
	if s.keepAlive != nil {
		if err := s.keepAlive.start(); err != nil {
			s.logger.Warn("keep-alive not started", "error", err)
		}
	}
	return nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// IsOpen reports whether the session accepts sends.
func (s *Session) IsOpen() bool { return s.State() == StateOpen }

// Transport returns the engine name.
func (s *Session) Transport() string { return s.transport }

// Reliabilities returns the levels the transport honors.
func (s *Session) Reliabilities() wire.ReliabilitySet { return s.supported }

// SupportsReliability implements wire.Supporter.
func (s *Session) SupportsReliability(r wire.Reliability) bool { return s.supported.Has(r) }

// DefaultReliability returns the reliability of channel 0.
func (s *Session) DefaultReliability() wire.Reliability { return s.config.DefaultReliability }

// LocalAddr returns the local transport address.
func (s *Session) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// RemoteAddr returns the peer transport address.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Pipeline returns the session's handler chain.
func (s *Session) Pipeline() *pipeline.Pipeline[*Session] { return s.pipeline }

// Scheduler returns the scheduler running the session's timers.
func (s *Session) Scheduler() *scheduler.Scheduler { return s.sched }

// Logger returns the session's operational logger.
func (s *Session) Logger() *slog.Logger { return s.logger }

// ProtocolLogger returns the protocol capture logger, or nil.
func (s *Session) ProtocolLogger() log.Logger { return s.plog }

// Channel returns a tracked channel.
func (s *Session) Channel(id wire.ChannelID) (*channel.Channel, bool) {
	return s.channels.Get(id)
}

// Channels returns a snapshot of every tracked channel.
func (s *Session) Channels() []channel.Info {
	return s.channels.Snapshot()
}

// Attach stores the application's session object.
func (s *Session) Attach(v any) {
	s.attachMu.Lock()
	s.attachment = v
	s.attachMu.Unlock()
}

// Attachment returns the object stored with Attach.
func (s *Session) Attachment() any {
	s.attachMu.RLock()
	defer s.attachMu.RUnlock()
	return s.attachment
}

// Send queues msg on channel ch. It returns once the message is queued, not
// written.
func (s *Session) Send(msg any, rel wire.Reliability, ch wire.ChannelID) error {
	return s.send(msg, rel, ch, false, nil)
}

// SendOn sends msg with the channel's negotiated reliability.
func (s *Session) SendOn(msg any, ch wire.ChannelID) error {
	c, ok := s.channels.Get(ch)
	if !ok {
		return &channel.IllegalStateError{Channel: ch, State: channel.StateClosed, Op: "send"}
	}
	return s.send(msg, c.Reliability(), ch, false, nil)
}

// SendFlush sends msg and asks the transport to flush.
func (s *Session) SendFlush(msg any, rel wire.Reliability, ch wire.ChannelID) error {
	return s.send(msg, rel, ch, true, nil)
}

// SendAsync sends msg and returns a future that completes once the
// transport wrote it.
func (s *Session) SendAsync(msg any, rel wire.Reliability, ch wire.ChannelID) future.Future[struct{}] {
	p := future.NewPromise[struct{}]()
	if err := s.send(msg, rel, ch, false, func(err error) {
		p.Resolve(struct{}{}, err)
	}); err != nil {
		p.Fail(err)
	}
	return p
}

// checkSend validates a send in order: session open, reliability honored,
// channel open.
func (s *Session) checkSend(rel wire.Reliability, ch wire.ChannelID) error {
	if !s.IsOpen() {
		return ErrSessionClosed
	}
	if ch.IsControl() {
		return fmt.Errorf("%w: %s", channel.ErrReservedChannel, ch)
	}
	if err := wire.CheckReliability(rel, s.transport, s.supported); err != nil {
		return err
	}
	_, err := s.channels.Writable(ch)
	return err
}

func (s *Session) send(msg any, rel wire.Reliability, ch wire.ChannelID, flush bool, done func(error)) error {
	if err := s.checkSend(rel, ch); err != nil {
		return err
	}

	written := func(err error) {
		if err == nil {
			s.pipeline.FireSent(msg, ch)
		}
		if done != nil {
			done(err)
		}
	}
	reached, err := s.pipeline.FireSending(msg, ch, written)
	if err != nil {
		if errors.Is(err, transport.ErrWriteBufferFull) {
			s.pipeline.FireExceptionCaught(err)
		}
		return err
	}
	if !reached {
		// A handler consumed the message.
		if done != nil {
			done(nil)
		}
		return nil
	}
	if flush {
		return s.conn.Flush()
	}
	return nil
}

// Close closes the session gracefully: the peer is told why, queued writes
// drain, then the transport closes. It is idempotent.
//
// A message whose dispatch began before Close may still reach handlers after
// Close returns. The returned future completes only once such a dispatch has
// finished, and no message is dispatched after it completes.
func (s *Session) Close(reason error) future.Future[struct{}] {
	s.beginClose(reason, true)
	return s.closed
}

// CloseNow closes the session at once, discarding queued writes.
func (s *Session) CloseNow(reason error) future.Future[struct{}] {
	s.beginClose(reason, false)
	return s.closed
}

// Closed returns the future that completes when the session is gone.
func (s *Session) Closed() future.Future[struct{}] {
	return s.closed
}

// Reason returns why the session closed, or nil while it is open.
func (s *Session) Reason() error {
	s.reasonMu.Lock()
	defer s.reasonMu.Unlock()
	return s.closeReason
}

func (s *Session) setReason(reason error) {
	s.reasonMu.Lock()
	if s.closeReason == nil {
		s.closeReason = reason
	}
	s.reasonMu.Unlock()
}

func (s *Session) beginClose(reason error, graceful bool) {
	s.closeOnce.Do(func() {
		prev := State(s.state.Swap(int32(StateClosing)))
		if prev == StateClosed {
			s.state.Store(int32(StateClosed))
			return
		}
		s.setReason(reason)
		s.logState(prev, StateClosing, reasonText(reason))
		if s.keepAlive != nil {
			s.keepAlive.stop()
		}

		if prev == StateNew {
			// Nothing reads from the transport, so nobody reports the disconnect.
			s.conn.Abort()
			s.finalize(nil)
			return
		}

		if !graceful {
			return
		}

		msg := wire.ControlMessage{Type: wire.ControlClose, Reason: reasonText(reason)}
		if err := s.sendControl(msg); err != nil {
			s.logger.Debug("close announcement not sent", "error", err)
		}
		fallback := s.sched.ScheduleIn(func() error {
			s.conn.Abort()
			return nil
		}, s.config.CloseTimeout)
		go func() {
			if err := s.conn.Close(); err != nil {
				s.logger.Debug("transport close", "error", err)
			}
		}()
		s.closed.OnComplete(func(struct{}, error) { fallback.Cancel() })
	})
	if !graceful {
		// Escalates a graceful close that is still draining.
		s.conn.Abort()
	}
}

// finalize runs once, after the transport reported the disconnect.
func (s *Session) finalize(err error) {
	s.finalOnce.Do(func() {
		prev := State(s.state.Swap(int32(StateClosed)))
		// Wait out a dispatch that saw the session still open.
		s.dispatchMu.Lock()
		s.dispatchMu.Unlock()
		if err != nil {
			s.setReason(err)
		}
		reason := s.Reason()

		if s.keepAlive != nil {
			s.keepAlive.stop()
		}
		s.handshakes.failAll(ErrSessionClosed)
		s.channels.ForceCloseAll()
		s.logState(prev, StateClosed, reasonText(reason))

		s.pipeline.FireClosed(reason)
		if s.config.OnClosed != nil {
			s.config.OnClosed(s, reason)
		}
		if s.ownSched {
			s.sched.Close()
		}
		s.closed.Complete(struct{}{})
	})
}

// raise reports an exception coming from session internals.
func (s *Session) raise(err error) {
	s.logError(err, "session")
	s.pipeline.FireExceptionCaught(err)
}

func (s *Session) receive(data []byte) {
	packets, err := s.framer.Unpack(data)
	for _, p := range packets {
		if !s.dispatch(p) {
			return
		}
	}
	if err != nil && s.State() == StateOpen {
		s.raise(fmt.Errorf("unpack: %w", err))
	}
}

// dispatch hands one packet to the control handler or the pipeline. It
// reports false once the session is no longer open.
func (s *Session) dispatch(p wire.ChanneledPacket) bool {
	s.dispatchMu.RLock()
	defer s.dispatchMu.RUnlock()
	if s.State() != StateOpen {
		return false
	}
	if p.Channel.IsControl() {
		s.handleControl(p.Payload)
		return true
	}
	ch, ok := s.channels.Get(p.Channel)
	if !ok || !ch.IsOpen() {
		state := channel.StateClosed
		if ok {
			state = ch.State()
		}
		s.logger.Debug("dropping packet for channel that is not open",
			"channel", p.Channel, "state", state)
		return true
	}
	s.pipeline.FireReceived(p.Payload, p.Channel)
	return true
}

func reasonText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// connHandler receives transport events.
type connHandler struct{ s *Session }

func (h connHandler) OnData(data []byte) { h.s.receive(data) }

func (h connHandler) OnDisconnect(err error) {
	if err != nil && h.s.State() == StateOpen {
		h.s.logger.Info("transport disconnected", "error", err)
	}
	h.s.finalize(err)
}

// edge connects the pipeline to the transport.
type edge struct{}

func (edge) Write(s *Session, msg any, ch wire.ChannelID, done func(error)) error {
	data, ok := msg.([]byte)
	if !ok {
		return fmt.Errorf("%w: %T", ErrNotEncoded, msg)
	}
	frame, err := s.framer.Pack(wire.ChanneledPacket{Payload: data, Channel: ch})
	if err != nil {
		return err
	}
	return s.conn.Write(frame, done)
}

func (edge) Unconsumed(s *Session, msg any, ch wire.ChannelID) {
	s.logger.Debug("message reached the end of the pipeline", "channel", ch, "type", fmt.Sprintf("%T", msg))
}

func (edge) Unhandled(s *Session, err error) {
	s.logger.Warn("unhandled exception, closing session", "error", err)
	if s.config.OnError != nil {
		s.config.OnError(s, err)
	}
	s.CloseNow(err)
}

// Compile-time interface satisfaction checks.
var (
	_ pipeline.Edge[*Session] = edge{}
	_ transport.Handler       = connHandler{}
	_ wire.Supporter          = (*Session)(nil)
)
