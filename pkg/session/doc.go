// Package session implements the per-peer state of a connection.
//
// A Session owns a transport.Conn, the Framer that slices its bytes into
// packets, a channel.Table, and an immutable pipeline.Pipeline built for it.
// Inbound packets run through the pipeline head to tail; outbound messages
// run tail to head and reach the transport through the pipeline edge the
// Session implements.
//
// # Sending
//
// Send, SendOn, SendFlush and SendAsync validate before anything is written:
// the session must be open, the transport must honor the reliability and
// the channel must be OPEN. A failed check returns an error and writes
// nothing. A full transport write queue is raised as an exception in the
// pipeline and returned to the caller.
//
// # Channels
//
// Channel 0 is open for the whole session. Other channels are opened and
// closed by a handshake on the control side-channel (wire.ControlChannel),
// which never reaches pipeline handlers. A handshake that gets no answer
// within Config.HandshakeTimeout force-closes the channel.
//
// # Closing
//
// Close announces the close to the peer, drains queued writes and closes
// the transport. CloseNow discards queued writes. Both are idempotent and
// return the same future, which completes once the transport is gone. No
// MessageReceived event starts after Close returns, and none is running
// when its future completes.
package session
