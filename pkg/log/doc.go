// Package log provides structured protocol capture for sessions.
//
// It is separate from operational logging (slog): protocol capture records a
// machine-readable trace of frames, channel state changes, control messages
// and errors, keyed by session id, for debugging and offline analysis.
//
// # Basic Usage
//
//	// During development: print events through slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// In production: append to a CBOR capture file
//	fl, _ := log.NewFileLogger("/var/log/pnet/server.plog")
//	cfg.ProtocolLogger = fl
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Event Types
//
// Every Event carries exactly one payload:
//   - FrameEvent: raw frame bytes at the transport layer
//   - PacketEvent: a decoded protocol packet
//   - StateChangeEvent: session or channel lifecycle transitions
//   - ControlEvent: control side-channel traffic (channel handshakes, ping, close)
//   - ErrorEvent: errors at any layer
//
// # File Format
//
// Capture files are a plain concatenation of CBOR-encoded events with
// integer keys. Reader streams them back with optional filtering.
package log
