// Package channel implements the per-session channel model.
//
// A channel is a logical sub-stream of a session identified by a
// wire.ChannelID and carrying a negotiated wire.Reliability. Its lifecycle
// is a strict cycle:
//
//	CLOSED -> OPENING -> OPEN -> CLOSING -> CLOSED
//
// OPENING and CLOSING are transient. They resolve when the peer answers the
// handshake control message, or fall back to CLOSED when the handshake
// times out or the session goes away. Payload traffic is only accepted on an
// OPEN channel; anything else fails with an IllegalStateError.
//
// Channel 0 (wire.DefaultChannel) is implicit and stays OPEN for the whole
// session lifetime.
package channel
