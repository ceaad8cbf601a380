package channel

import (
	"sync"

	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// Observer is notified after every state change of a channel. It is called
// without the channel lock held.
type Observer func(ch *Channel, from, to State)

// Channel is one logical sub-stream of a session.
type Channel struct {
	id          wire.ChannelID
	reliability wire.Reliability
	observer    Observer

	mu     sync.Mutex
	state  State
	remote bool
}

// New creates a closed channel.
func New(id wire.ChannelID, reliability wire.Reliability, observer Observer) *Channel {
	return &Channel{id: id, reliability: reliability, observer: observer}
}

// ID returns the channel id.
func (c *Channel) ID() wire.ChannelID {
	return c.id
}

// Reliability returns the negotiated reliability.
func (c *Channel) Reliability() wire.Reliability {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reliability
}

// State returns the current state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsOpen reports whether the channel accepts payload traffic.
func (c *Channel) IsOpen() bool {
	return c.State() == StateOpen
}

// Remote reports whether the peer initiated the current open.
func (c *Channel) Remote() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

// BeginOpen starts a locally initiated open with the given reliability and
// returns the handshake request to send to the peer.
func (c *Channel) BeginOpen(reliability wire.Reliability) (wire.ControlMessage, error) {
	c.mu.Lock()
	if err := c.transitionLocked(StateOpening, "open"); err != nil {
		c.mu.Unlock()
		return wire.ControlMessage{}, err
	}
	c.reliability = reliability
	c.remote = false
	c.mu.Unlock()

	c.notify(StateClosed, StateOpening)
	return wire.ControlMessage{
		Type:        wire.ControlChannelOpen,
		Channel:     c.id,
		Reliability: reliability,
	}, nil
}

// AckOpen completes a locally initiated open once the peer acknowledged it.
func (c *Channel) AckOpen() error {
	return c.step(StateOpen, "acknowledge open")
}

// AcceptOpen opens the channel on behalf of the peer and returns the
// acknowledgement to send back.
func (c *Channel) AcceptOpen(reliability wire.Reliability) (wire.ControlMessage, error) {
	c.mu.Lock()
	if err := c.transitionLocked(StateOpening, "accept open"); err != nil {
		c.mu.Unlock()
		return wire.ControlMessage{}, err
	}
	c.reliability = reliability
	c.remote = true
	c.state = StateOpen
	c.mu.Unlock()

	c.notify(StateClosed, StateOpening)
	c.notify(StateOpening, StateOpen)
	return wire.ControlMessage{Type: wire.ControlChannelOpenAck, Channel: c.id}, nil
}

// BeginClose starts a locally initiated close and returns the handshake
// request to send to the peer.
func (c *Channel) BeginClose() (wire.ControlMessage, error) {
	if err := c.step(StateClosing, "close"); err != nil {
		return wire.ControlMessage{}, err
	}
	return wire.ControlMessage{Type: wire.ControlChannelClose, Channel: c.id}, nil
}

// AckClose completes a locally initiated close once the peer acknowledged it.
func (c *Channel) AckClose() error {
	return c.step(StateClosed, "acknowledge close")
}

// AcceptClose closes the channel on behalf of the peer and returns the
// acknowledgement to send back. A channel already closing locally completes
// its close.
func (c *Channel) AcceptClose() (wire.ControlMessage, error) {
	ack := wire.ControlMessage{Type: wire.ControlChannelCloseAck, Channel: c.id}

	c.mu.Lock()
	switch c.state {
	case StateOpen:
		c.state = StateClosed
		c.mu.Unlock()
		c.notify(StateOpen, StateClosing)
		c.notify(StateClosing, StateClosed)
		return ack, nil
	case StateClosing:
		c.state = StateClosed
		c.mu.Unlock()
		c.notify(StateClosing, StateClosed)
		return ack, nil
	default:
		err := &IllegalStateError{Channel: c.id, State: c.state, Op: "accept close"}
		c.mu.Unlock()
		return wire.ControlMessage{}, err
	}
}

// ForceClose moves the channel to CLOSED from any state. This is the
// fallback for timed out handshakes and session teardown. An OPEN channel
// reports OPEN to CLOSING to CLOSED to the observer like a regular close. It
// returns the state the channel was in.
func (c *Channel) ForceClose() State {
	c.mu.Lock()
	prev := c.state
	c.state = StateClosed
	c.mu.Unlock()

	switch prev {
	case StateClosed:
	case StateOpen:
		c.notify(StateOpen, StateClosing)
		c.notify(StateClosing, StateClosed)
	default:
		c.notify(prev, StateClosed)
	}
	return prev
}

// CheckWritable returns an IllegalStateError unless the channel is OPEN.
func (c *Channel) CheckWritable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return &IllegalStateError{Channel: c.id, State: c.state, Op: "send"}
	}
	return nil
}

func (c *Channel) step(to State, op string) error {
	c.mu.Lock()
	from := c.state
	if err := c.transitionLocked(to, op); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()
	c.notify(from, to)
	return nil
}

func (c *Channel) transitionLocked(to State, op string) error {
	if !isValidTransition(c.state, to) {
		return &IllegalStateError{Channel: c.id, State: c.state, Op: op}
	}
	c.state = to
	return nil
}

func (c *Channel) notify(from, to State) {
	if c.observer != nil {
		c.observer(c, from, to)
	}
}
