package session

import (
	"fmt"
	"sync"

	"github.com/PorkStudios/PorkLib-sub015/pkg/channel"
	"github.com/PorkStudios/PorkLib-sub015/pkg/future"
	"github.com/PorkStudios/PorkLib-sub015/pkg/log"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// handshakes tracks channel opens and closes waiting for the peer.
type handshakes struct {
	mu     sync.Mutex
	opens  map[wire.ChannelID]*pending[*channel.Channel]
	closes map[wire.ChannelID]*pending[struct{}]
}

type pending[T any] struct {
	promise *future.Promise[T]
	timeout future.Future[struct{}]
	// closeAfter is set on a pending open when CloseChannel was called while
	// the channel was still OPENING.
	closeAfter *future.Promise[struct{}]
}

func (h *handshakes) init() {
	h.opens = make(map[wire.ChannelID]*pending[*channel.Channel])
	h.closes = make(map[wire.ChannelID]*pending[struct{}])
}

// settleOpen removes the pending open of id and runs settle while holding
// the lock, so a concurrent CloseChannel never sees a settled open with its
// channel still OPENING. If want is non-nil only that exact entry is taken.
func (h *handshakes) settleOpen(id wire.ChannelID, want *pending[*channel.Channel], settle func()) *pending[*channel.Channel] {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.opens[id]
	if p == nil || (want != nil && p != want) {
		return nil
	}
	delete(h.opens, id)
	if settle != nil {
		settle()
	}
	return p
}

// closeWhenOpened queues a close behind the pending open of ch. It reports
// false when no open is pending or ch already left OPENING.
func (h *handshakes) closeWhenOpened(ch *channel.Channel) (future.Future[struct{}], bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.opens[ch.ID()]
	if p == nil || ch.State() != channel.StateOpening {
		return nil, false
	}
	if p.closeAfter == nil {
		p.closeAfter = future.NewPromise[struct{}]()
	}
	return p.closeAfter, true
}

func (h *handshakes) takeClose(id wire.ChannelID) *pending[struct{}] {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.closes[id]
	delete(h.closes, id)
	return p
}

func (h *handshakes) failAll(err error) {
	h.mu.Lock()
	opens, closes := h.opens, h.closes
	h.init()
	h.mu.Unlock()

	for _, p := range opens {
		p.timeout.Cancel()
		p.promise.Fail(err)
		if p.closeAfter != nil {
			p.closeAfter.Fail(err)
		}
	}
	for _, p := range closes {
		p.timeout.Cancel()
		p.promise.Fail(err)
	}
}

// OpenChannel opens channel id with the given reliability. The returned
// future completes with the channel once the peer acknowledged it. A
// rejected or timed out open leaves the channel CLOSED.
func (s *Session) OpenChannel(rel wire.Reliability, id wire.ChannelID) future.Future[*channel.Channel] {
	if !s.IsOpen() {
		return future.Failed[*channel.Channel](ErrSessionClosed)
	}
	if err := wire.CheckReliability(rel, s.transport, s.supported); err != nil {
		return future.Failed[*channel.Channel](err)
	}
	ch, msg, err := s.channels.Open(id, rel)
	if err != nil {
		return future.Failed[*channel.Channel](err)
	}

	p := &pending[*channel.Channel]{promise: future.NewPromise[*channel.Channel]()}
	forceClose := func() { ch.ForceClose() }
	s.handshakes.mu.Lock()
	s.handshakes.opens[id] = p
	p.timeout = s.sched.ScheduleIn(func() error {
		if s.handshakes.settleOpen(id, p, forceClose) != nil {
			s.openFailed(p, fmt.Errorf("open channel %s: %w", id, channel.ErrHandshakeTimeout))
		}
		return nil
	}, s.config.HandshakeTimeout)
	s.handshakes.mu.Unlock()

	if err := s.sendControl(msg); err != nil {
		if s.handshakes.settleOpen(id, p, forceClose) != nil {
			p.timeout.Cancel()
			s.openFailed(p, err)
		}
	}
	return p.promise
}

// openFailed fails a settled open. A close queued behind it succeeds since
// the channel is already CLOSED.
func (s *Session) openFailed(p *pending[*channel.Channel], err error) {
	p.promise.Fail(err)
	if p.closeAfter != nil {
		p.closeAfter.Complete(struct{}{})
	}
}

// CloseChannel closes channel id. The returned future completes once the
// peer acknowledged; on timeout the channel is forced CLOSED and the future
// fails with channel.ErrHandshakeTimeout. Closing a channel whose open is
// still in flight waits for the open to settle: an acknowledged open is
// closed right away, a rejected or timed out one completes the close.
func (s *Session) CloseChannel(id wire.ChannelID) future.Future[struct{}] {
	if !s.IsOpen() {
		return future.Failed[struct{}](ErrSessionClosed)
	}
	if id == wire.DefaultChannel || id.IsControl() {
		return future.Failed[struct{}](fmt.Errorf("%w: %s", channel.ErrReservedChannel, id))
	}
	ch, ok := s.channels.Get(id)
	if !ok {
		return future.Failed[struct{}](&channel.IllegalStateError{Channel: id, State: channel.StateClosed, Op: "close"})
	}
	if f, queued := s.handshakes.closeWhenOpened(ch); queued {
		return f
	}
	p := future.NewPromise[struct{}]()
	s.startClose(ch, p)
	return p
}

// startClose runs the close handshake of ch and resolves promise with it.
func (s *Session) startClose(ch *channel.Channel, promise *future.Promise[struct{}]) {
	id := ch.ID()
	msg, err := ch.BeginClose()
	if err != nil {
		promise.Fail(err)
		return
	}

	p := &pending[struct{}]{promise: promise}
	s.handshakes.mu.Lock()
	s.handshakes.closes[id] = p
	p.timeout = s.sched.ScheduleIn(func() error {
		if s.handshakes.takeClose(id) == p {
			ch.ForceClose()
			p.promise.Fail(fmt.Errorf("close channel %s: %w", id, channel.ErrHandshakeTimeout))
		}
		return nil
	}, s.config.HandshakeTimeout)
	s.handshakes.mu.Unlock()

	if err := s.sendControl(msg); err != nil {
		if s.handshakes.takeClose(id) == p {
			p.timeout.Cancel()
			ch.ForceClose()
			p.promise.Fail(err)
		}
	}
}

// sendControl writes msg on the control side-channel, bypassing the pipeline.
func (s *Session) sendControl(msg wire.ControlMessage) error {
	data, err := wire.EncodeControlMessage(&msg)
	if err != nil {
		return err
	}
	frame, err := s.framer.Pack(wire.ChanneledPacket{Payload: data, Channel: wire.ControlChannel})
	if err != nil {
		return err
	}
	s.logControl(msg, log.DirectionOut)
	return s.conn.Write(frame, nil)
}

func (s *Session) handleControl(data []byte) {
	msg, err := wire.DecodeControlMessage(data)
	if err != nil {
		s.raise(fmt.Errorf("control message: %w", err))
		return
	}
	s.logControl(*msg, log.DirectionIn)

	switch msg.Type {
	case wire.ControlChannelOpen:
		s.acceptOpen(msg)
	case wire.ControlChannelOpenAck:
		ch, _ := s.channels.Get(msg.Channel)
		var ackErr error
		p := s.handshakes.settleOpen(msg.Channel, nil, func() { ackErr = ch.AckOpen() })
		if p == nil {
			s.logger.Debug("open ack without pending open", "channel", msg.Channel)
			return
		}
		p.timeout.Cancel()
		if ackErr != nil {
			s.openFailed(p, ackErr)
			return
		}
		p.promise.Complete(ch)
		if p.closeAfter != nil {
			s.startClose(ch, p.closeAfter)
		}
	case wire.ControlChannelOpenReject:
		ch, ok := s.channels.Get(msg.Channel)
		p := s.handshakes.settleOpen(msg.Channel, nil, func() {
			if ok {
				ch.ForceClose()
			}
		})
		if p == nil {
			return
		}
		p.timeout.Cancel()
		s.openFailed(p, &channel.RejectedError{Channel: msg.Channel, Reason: msg.Reason})
	case wire.ControlChannelClose:
		s.acceptClose(msg)
	case wire.ControlChannelCloseAck:
		p := s.handshakes.takeClose(msg.Channel)
		if p == nil {
			return
		}
		p.timeout.Cancel()
		if ch, ok := s.channels.Get(msg.Channel); ok && ch.State() == channel.StateClosing {
			if err := ch.AckClose(); err != nil {
				p.promise.Fail(err)
				return
			}
		}
		p.promise.Complete(struct{}{})
	case wire.ControlPing:
		if err := s.sendControl(wire.ControlMessage{Type: wire.ControlPong, Sequence: msg.Sequence}); err != nil {
			s.logger.Debug("pong not sent", "error", err)
		}
	case wire.ControlPong:
		if s.keepAlive != nil {
			s.keepAlive.pong(msg.Sequence)
		}
	case wire.ControlClose:
		s.logger.Info("peer closed session", "reason", msg.Reason)
		s.beginClose(peerCloseError(msg.Reason), true)
	}
}

// acceptOpen answers a channel open requested by the peer.
func (s *Session) acceptOpen(msg *wire.ControlMessage) {
	reject := func(reason string) {
		s.logger.Debug("rejecting channel open", "channel", msg.Channel, "reason", reason)
		if err := s.sendControl(wire.ControlMessage{
			Type:    wire.ControlChannelOpenReject,
			Channel: msg.Channel,
			Reason:  reason,
		}); err != nil {
			s.logger.Debug("reject not sent", "error", err)
		}
	}

	if !s.supported.Has(msg.Reliability) {
		reject(wire.ErrUnsupportedReliability.Error() + ": " + msg.Reliability.String())
		return
	}
	_, ack, err := s.channels.Accept(msg.Channel, msg.Reliability)
	if err != nil {
		reject(err.Error())
		return
	}
	if err := s.sendControl(ack); err != nil {
		s.logger.Debug("open ack not sent", "error", err)
	}
}

// acceptClose answers a channel close requested by the peer. The ack is sent
// even for channels already closed so the peer's handshake resolves.
func (s *Session) acceptClose(msg *wire.ControlMessage) {
	if ch, ok := s.channels.Get(msg.Channel); ok {
		if _, err := ch.AcceptClose(); err != nil {
			s.logger.Debug("close for channel not open", "channel", msg.Channel, "error", err)
		}
	}
	// Both sides closing at once: our close is done as well.
	if p := s.handshakes.takeClose(msg.Channel); p != nil {
		p.timeout.Cancel()
		p.promise.Complete(struct{}{})
	}
	if err := s.sendControl(wire.ControlMessage{Type: wire.ControlChannelCloseAck, Channel: msg.Channel}); err != nil {
		s.logger.Debug("close ack not sent", "error", err)
	}
}
