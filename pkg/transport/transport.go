package transport

import (
	"context"
	"errors"
	"net"

	"github.com/PorkStudios/PorkLib-sub015/pkg/framing"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// Transport errors.
var (
	ErrTransportClosed = errors.New("transport closed")
	ErrWriteBufferFull = errors.New("write buffer full")
	ErrAlreadyStarted  = errors.New("connection already started")
	ErrListenerClosed  = errors.New("listener closed")
)

// Handler receives inbound events of a Conn. Calls are serialised per
// connection.
type Handler interface {
	// OnData delivers bytes read from the transport. The slice is only valid
	// for the duration of the call.
	OnData(data []byte)

	// OnDisconnect reports that the connection is gone. It is called exactly
	// once; err is nil for a locally requested close.
	OnDisconnect(err error)
}

// Conn is one established transport connection.
type Conn interface {
	// Start begins delivering inbound events to h.
	Start(h Handler) error

	// Write queues data. done, if non-nil, is called once the data was
	// written or discarded.
	Write(data []byte, done func(error)) error

	// Flush asks the writer to push buffered data to the network.
	Flush() error

	// Close drains queued writes, then closes the connection.
	Close() error

	// Abort closes the connection immediately, discarding queued writes.
	Abort() error

	// IsOpen reports whether writes are still accepted.
	IsOpen() bool

	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// Listener accepts inbound connections.
type Listener interface {
	// Accept blocks until a connection arrives or the listener closes.
	Accept(ctx context.Context) (Conn, error)

	Close() error
	Addr() net.Addr
}

// Engine is a pluggable transport implementation.
type Engine interface {
	// Name identifies the engine in configuration ("tcp", "websocket", "pipe").
	Name() string

	// Reliabilities returns every level the engine honors.
	Reliabilities() wire.ReliabilitySet

	// SupportsReliability reports whether r is honored.
	SupportsReliability(r wire.Reliability) bool

	// NewFramer returns a framer for one connection.
	NewFramer() framing.Framer

	// Dial opens a connection to addr.
	Dial(ctx context.Context, addr string) (Conn, error)

	// Listen starts accepting connections on addr.
	Listen(ctx context.Context, addr string) (Listener, error)
}

// HandlerFuncs adapts functions to Handler.
type HandlerFuncs struct {
	Data       func(data []byte)
	Disconnect func(err error)
}

// OnData implements Handler.
func (h HandlerFuncs) OnData(data []byte) {
	if h.Data != nil {
		h.Data(data)
	}
}

// OnDisconnect implements Handler.
func (h HandlerFuncs) OnDisconnect(err error) {
	if h.Disconnect != nil {
		h.Disconnect(err)
	}
}

// Compile-time interface satisfaction check.
var _ Handler = HandlerFuncs{}
