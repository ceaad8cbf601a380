// Package tcp is the stream-socket transport engine: length-prefixed frames
// over TCP, optionally wrapped in TLS 1.3.
package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/PorkStudios/PorkLib-sub015/pkg/framing"
	"github.com/PorkStudios/PorkLib-sub015/pkg/transport"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// EngineName is the name the engine registers under.
const EngineName = "tcp"

// DefaultDialTimeout bounds connection establishment including the TLS
// handshake.
const DefaultDialTimeout = 10 * time.Second

// acceptBacklog is the number of accepted connections waiting for Accept.
const acceptBacklog = 16

// Reliabilities honored by TCP.
var Reliabilities = wire.NewReliabilitySet(wire.Reliable, wire.ReliableOrdered)

// Config configures the engine.
type Config struct {
	// ServerTLS enables TLS on listeners.
	ServerTLS *tls.Config

	// ClientTLS enables TLS on dialed connections.
	ClientTLS *tls.Config

	// DialTimeout defaults to DefaultDialTimeout.
	DialTimeout time.Duration

	// LocalAddr binds dialed connections to a local host:port.
	LocalAddr string

	// MaxFrameSize is passed to the stream framer.
	MaxFrameSize uint32

	// Stream configures each connection's buffers and drain timeout.
	Stream transport.StreamOptions

	// OnAcceptError receives failed accepts and TLS handshakes.
	OnAcceptError func(err error)
}

// Engine implements transport.Engine over TCP.
type Engine struct {
	config Config
}

// New creates a TCP engine.
func New(config Config) *Engine {
	if config.DialTimeout <= 0 {
		config.DialTimeout = DefaultDialTimeout
	}
	return &Engine{config: config}
}

// Name implements transport.Engine.
func (e *Engine) Name() string { return EngineName }

// Reliabilities implements transport.Engine.
func (e *Engine) Reliabilities() wire.ReliabilitySet { return Reliabilities }

// SupportsReliability implements transport.Engine.
func (e *Engine) SupportsReliability(r wire.Reliability) bool { return Reliabilities.Has(r) }

// NewFramer implements transport.Engine.
func (e *Engine) NewFramer() framing.Framer {
	return framing.NewStreamFramer(e.config.MaxFrameSize)
}

// Dial implements transport.Engine.
func (e *Engine) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.DialTimeout)
	defer cancel()

	var d net.Dialer
	if e.config.LocalAddr != "" {
		local, err := net.ResolveTCPAddr("tcp", e.config.LocalAddr)
		if err != nil {
			return nil, fmt.Errorf("local address %s: %w", e.config.LocalAddr, err)
		}
		d.LocalAddr = local
	}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	if e.config.ClientTLS != nil {
		tlsConn := tls.Client(nc, e.config.ClientTLS)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			nc.Close()
			return nil, fmt.Errorf("TLS handshake failed: %w", err)
		}
		if err := transport.VerifyConnection(tlsConn.ConnectionState()); err != nil {
			tlsConn.Close()
			return nil, err
		}
		nc = tlsConn
	}

	return transport.NewStreamConn(nc, e.config.Stream), nil
}

// Listen implements transport.Engine.
func (e *Engine) Listen(ctx context.Context, addr string) (transport.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	l := &listener{
		engine:  e,
		ln:      ln,
		accepts: make(chan transport.Conn, acceptBacklog),
		done:    make(chan struct{}),
	}
	l.wg.Add(1)
	go l.acceptLoop()
	return l, nil
}

type listener struct {
	engine  *Engine
	ln      net.Listener
	accepts chan transport.Conn
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func (l *listener) acceptLoop() {
	defer l.wg.Done()

	for {
		nc, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			l.reportError(fmt.Errorf("accept error: %w", err))
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		l.wg.Add(1)
		go l.handshake(nc)
	}
}

func (l *listener) handshake(nc net.Conn) {
	defer l.wg.Done()

	if cfg := l.engine.config.ServerTLS; cfg != nil {
		tlsConn := tls.Server(nc, cfg)
		ctx, cancel := context.WithTimeout(context.Background(), l.engine.config.DialTimeout)
		err := tlsConn.HandshakeContext(ctx)
		cancel()
		if err != nil {
			nc.Close()
			l.reportError(fmt.Errorf("TLS handshake failed: %w", err))
			return
		}
		if err := transport.VerifyConnection(tlsConn.ConnectionState()); err != nil {
			tlsConn.Close()
			l.reportError(err)
			return
		}
		nc = tlsConn
	}

	conn := transport.NewStreamConn(nc, l.engine.config.Stream)
	select {
	case l.accepts <- conn:
	case <-l.done:
		conn.Abort()
	}
}

func (l *listener) reportError(err error) {
	if fn := l.engine.config.OnAcceptError; fn != nil {
		fn(err)
	}
}

// Accept implements transport.Listener.
func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case conn := <-l.accepts:
		return conn, nil
	case <-l.done:
		return nil, transport.ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements transport.Listener.
func (l *listener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.ln.Close()
		l.wg.Wait()
		// Drop connections nobody accepted.
		for {
			select {
			case conn := <-l.accepts:
				conn.Abort()
			default:
				return
			}
		}
	})
	return err
}

// Addr implements transport.Listener.
func (l *listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Compile-time interface satisfaction checks.
var (
	_ transport.Engine   = (*Engine)(nil)
	_ transport.Listener = (*listener)(nil)
)
