// Package transport defines the pluggable boundary between sessions and the
// network.
//
// An Engine dials and listens for one kind of transport and declares which
// wire.Reliability levels it can honor. Every connection it produces is a
// Conn: a narrow write/close/isOpen capability that sessions hold by
// composition. Inbound bytes are pushed to the Handler given to Start, and
// the Handler learns exactly once that the connection is gone.
//
// Engines live in subpackages:
//   - tcp: byte streams over TCP, optionally wrapped in TLS 1.3
//   - websocket: binary WebSocket messages
//   - pipe: in-process lock-free rings, for tests and embedding
//
// # Write Path
//
// Writes never block the caller. Each Conn serialises writes through a
// WriteQueue: a bounded queue drained by one writer goroutine that flushes
// whenever the queue runs empty. A full queue fails the write with
// ErrWriteBufferFull. Close drains the queue before closing the connection;
// Abort discards it.
//
// # TLS
//
// NewServerTLSConfig and NewClientTLSConfig build TLS 1.3 only
// configurations advertising the ALPN identifier "pnet/1". Encryption at the
// pipeline level is independent of TLS and lives in package secure.
package transport
