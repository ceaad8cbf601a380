package wire

import "fmt"

// ControlMessageType represents the type of a control message.
type ControlMessageType uint8

const (
	// ControlChannelOpen requests that the peer open a channel.
	ControlChannelOpen ControlMessageType = 1

	// ControlChannelOpenAck confirms a channel open.
	ControlChannelOpenAck ControlMessageType = 2

	// ControlChannelOpenReject refuses a channel open.
	ControlChannelOpenReject ControlMessageType = 3

	// ControlChannelClose requests that the peer close a channel.
	ControlChannelClose ControlMessageType = 4

	// ControlChannelCloseAck confirms a channel close.
	ControlChannelCloseAck ControlMessageType = 5

	// ControlPing is sent to check session liveness.
	ControlPing ControlMessageType = 6

	// ControlPong is the response to a ping.
	ControlPong ControlMessageType = 7

	// ControlClose announces a graceful session close.
	ControlClose ControlMessageType = 8
)

// String returns the control message type name.
func (t ControlMessageType) String() string {
	switch t {
	case ControlChannelOpen:
		return "channel-open"
	case ControlChannelOpenAck:
		return "channel-open-ack"
	case ControlChannelOpenReject:
		return "channel-open-reject"
	case ControlChannelClose:
		return "channel-close"
	case ControlChannelCloseAck:
		return "channel-close-ack"
	case ControlPing:
		return "ping"
	case ControlPong:
		return "pong"
	case ControlClose:
		return "close"
	default:
		return "unknown"
	}
}

// IsChannelManagement reports whether t belongs to the channel handshake.
func (t ControlMessageType) IsChannelManagement() bool {
	return t >= ControlChannelOpen && t <= ControlChannelCloseAck
}

// ControlMessage is a session-level control message.
//
// CBOR encoding:
//
//	{
//	  1: type,         // uint8
//	  2: channel,      // uint32, channel management only
//	  3: reliability,  // uint8, channel-open only
//	  4: sequence,     // uint32, ping/pong only
//	  5: reason        // string, reject/close only
//	}
type ControlMessage struct {
	Type        ControlMessageType `cbor:"1,keyasint"`
	Channel     ChannelID          `cbor:"2,keyasint,omitempty"`
	Reliability Reliability        `cbor:"3,keyasint,omitempty"`
	Sequence    uint32             `cbor:"4,keyasint,omitempty"`
	Reason      string             `cbor:"5,keyasint,omitempty"`
}

// Validate checks if the control message is well formed.
func (m *ControlMessage) Validate() error {
	if m.Type < ControlChannelOpen || m.Type > ControlClose {
		return fmt.Errorf("invalid control message type: %d", m.Type)
	}
	if m.Type.IsChannelManagement() {
		if m.Channel == DefaultChannel || m.Channel.IsControl() {
			return fmt.Errorf("%s: channel %s cannot be managed", m.Type, m.Channel)
		}
	}
	if m.Type == ControlChannelOpen && !m.Reliability.Valid() {
		return fmt.Errorf("%s: %w: %d", m.Type, ErrInvalidReliability, m.Reliability)
	}
	return nil
}
