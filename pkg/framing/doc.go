// Package framing converts between transport bytes and channeled packets.
//
// A Framer is owned by one session. Unpack is fed whatever the transport
// delivered and returns every complete packet found so far; incomplete input
// is kept as residue for the next call, so Unpack never blocks and works
// across arbitrary partial reads. Pack is stateless and safe for concurrent
// use.
//
// # Stream Format
//
// Byte-stream transports use StreamFramer:
//
//	+------------------+-------------------+---------------------+
//	| Length (4 bytes) | Channel (uvarint) | Payload (variable)  |
//	| big-endian       |                   |                     |
//	+------------------+-------------------+---------------------+
//
// Length covers the channel id and the payload.
//
// # Datagram Format
//
// Message-oriented transports preserve boundaries, so DatagramFramer drops
// the length prefix and treats each transport message as one frame:
//
//	+-------------------+---------------------+
//	| Channel (uvarint) | Payload (variable)  |
//	+-------------------+---------------------+
package framing
