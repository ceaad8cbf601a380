package log

import (
	"time"

	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// Event is one captured protocol event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred.
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the session (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event.
	Category Category `cbor:"5,keyasint"`

	// Transport is the engine name (tcp, websocket, pipe).
	Transport string `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address.
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Channel is the channel the event relates to, if any.
	Channel *wire.ChannelID `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Packet      *PacketEvent      `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Control     *ControlEvent     `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEvent       `cbor:"14,keyasint,omitempty"`
}

// ChannelRef returns a pointer suitable for Event.Channel.
func ChannelRef(id wire.ChannelID) *wire.ChannelID {
	return &id
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerSession is the session layer (channels, control side-channel).
	LayerSession Layer = 1
	// LayerProtocol is the packet codec layer.
	LayerProtocol Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerSession:
		return "SESSION"
	case LayerProtocol:
		return "PROTOCOL"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates payload traffic.
	CategoryMessage Category = 0
	// CategoryControl indicates control side-channel traffic.
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes including framing overhead.
	Size int `cbor:"1,keyasint"`

	// Data is the frame payload (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// PacketEvent captures a decoded protocol packet.
type PacketEvent struct {
	// Protocol is the protocol name.
	Protocol string `cbor:"1,keyasint"`

	// PacketID is the registered packet id.
	PacketID uint64 `cbor:"2,keyasint"`

	// Type is the Go type name of the decoded packet.
	Type string `cbor:"3,keyasint,omitempty"`

	// Size is the packet body size including the id.
	Size int `cbor:"4,keyasint,omitempty"`
}

// StateChangeEvent captures session and channel lifecycle transitions.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntitySession indicates a session state change.
	StateEntitySession StateEntity = 0
	// StateEntityChannel indicates a channel state change.
	StateEntityChannel StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntitySession:
		return "SESSION"
	case StateEntityChannel:
		return "CHANNEL"
	default:
		return "UNKNOWN"
	}
}

// ControlEvent captures a control side-channel message.
type ControlEvent struct {
	// Type of control message.
	Type wire.ControlMessageType `cbor:"1,keyasint"`

	// Reliability requested by a channel open.
	Reliability *wire.Reliability `cbor:"2,keyasint,omitempty"`

	// Sequence of a ping or pong.
	Sequence uint32 `cbor:"3,keyasint,omitempty"`

	// Reason carried by rejects and closes.
	Reason string `cbor:"4,keyasint,omitempty"`
}

// NewControlEvent captures the loggable fields of msg.
func NewControlEvent(msg wire.ControlMessage) *ControlEvent {
	ev := &ControlEvent{Type: msg.Type, Sequence: msg.Sequence, Reason: msg.Reason}
	if msg.Type == wire.ControlChannelOpen {
		r := msg.Reliability
		ev.Reliability = &r
	}
	return ev
}

// ErrorEvent captures an error at any layer.
type ErrorEvent struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
