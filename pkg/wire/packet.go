package wire

import "fmt"

// ChannelID identifies a logical channel within one session.
type ChannelID uint32

const (
	// DefaultChannel is the implicit channel that stays open for the whole
	// session lifetime.
	DefaultChannel ChannelID = 0

	// ControlChannel is the reserved side-channel carrying control messages.
	// It is never visible to pipeline handlers.
	ControlChannel ChannelID = 0xFFFFFFFF

	// MaxChannelID is the largest id usable for payload channels.
	MaxChannelID ChannelID = ControlChannel - 1
)

// IsControl reports whether id is the control side-channel.
func (id ChannelID) IsControl() bool {
	return id == ControlChannel
}

// String returns the channel id in decimal, or "control".
func (id ChannelID) String() string {
	if id.IsControl() {
		return "control"
	}
	return fmt.Sprintf("%d", uint32(id))
}

// ChanneledPacket is a payload bound to the channel it travels on.
// The payload slice is owned by whoever holds the packet; senders must not
// modify it after handing the packet to a session.
type ChanneledPacket struct {
	Payload []byte
	Channel ChannelID
}

// NewChanneledPacket pairs payload with channel.
func NewChanneledPacket(payload []byte, channel ChannelID) ChanneledPacket {
	return ChanneledPacket{Payload: payload, Channel: channel}
}
