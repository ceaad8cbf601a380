// Package websocket is the message-socket transport engine. Every frame is
// one binary WebSocket message, so framing needs no length prefix.
package websocket

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/PorkStudios/PorkLib-sub015/pkg/framing"
	"github.com/PorkStudios/PorkLib-sub015/pkg/transport"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// EngineName is the name the engine registers under.
const EngineName = "websocket"

// DefaultPath is the HTTP path the listener upgrades on.
const DefaultPath = "/pnet"

const acceptBacklog = 16

// Reliabilities honored by WebSocket.
var Reliabilities = wire.NewReliabilitySet(wire.Reliable, wire.ReliableOrdered)

// ErrTextMessage is reported when the peer sends a text message.
var ErrTextMessage = errors.New("unexpected text message")

// Config configures the engine.
type Config struct {
	// Path is the upgrade path. Defaults to DefaultPath.
	Path string

	// ServerTLS serves wss on listeners.
	ServerTLS *tls.Config

	// ClientTLS is used when dialing wss URLs.
	ClientTLS *tls.Config

	// MaxFrameSize limits inbound messages.
	MaxFrameSize uint32

	// WriteQueueDepth is the per-connection write queue depth.
	WriteQueueDepth int

	// DrainTimeout bounds the graceful close.
	DrainTimeout time.Duration
}

// Engine implements transport.Engine over WebSocket.
type Engine struct {
	config Config
}

// New creates a WebSocket engine.
func New(config Config) *Engine {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.MaxFrameSize == 0 {
		config.MaxFrameSize = framing.DefaultMaxFrameSize
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = transport.DefaultDrainTimeout
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
	return framing.NewDatagramFramer(e.config.MaxFrameSize)
}

// URL turns addr into a WebSocket URL. A bare host:port gets the scheme
// and the configured path.
func (e *Engine) URL(addr string) string {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return addr
	}
	scheme := "ws"
	if e.config.ClientTLS != nil {
		scheme = "wss"
	}
	return scheme + "://" + addr + e.config.Path
}

// Dial implements transport.Engine.
func (e *Engine) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	url := e.URL(addr)
	opts := &websocket.DialOptions{Subprotocols: []string{transport.ALPNProtocol}}
	if e.config.ClientTLS != nil {
		opts.HTTPClient = &http.Client{
			Transport: &http.Transport{TLSClientConfig: e.config.ClientTLS},
		}
	}

	ws, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if ws.Subprotocol() != transport.ALPNProtocol {
		ws.Close(websocket.StatusProtocolError, "subprotocol required")
		return nil, fmt.Errorf("server did not negotiate %q", transport.ALPNProtocol)
	}

	remote := addrOf(strings.TrimPrefix(strings.TrimPrefix(url, "wss://"), "ws://"))
	return e.newConn(ws, addrOf("local"), remote), nil
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
	mux := http.NewServeMux()
	mux.HandleFunc(e.config.Path, l.upgrade)
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if e.config.ServerTLS != nil {
			l.srv.TLSConfig = e.config.ServerTLS
			_ = l.srv.ServeTLS(ln, "", "")
		} else {
			_ = l.srv.Serve(ln)
		}
	}()
	return l, nil
}

type listener struct {
	engine  *Engine
	ln      net.Listener
	srv     *http.Server
	accepts chan transport.Conn
	done    chan struct{}
	once    sync.Once
}

func (l *listener) upgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{transport.ALPNProtocol},
	})
	if err != nil {
		return
	}
	if ws.Subprotocol() != transport.ALPNProtocol {
		ws.Close(websocket.StatusPolicyViolation, "subprotocol required")
		return
	}

	c := l.engine.newConn(ws, l.ln.Addr(), addrOf(r.RemoteAddr))
	select {
	case l.accepts <- c:
	case <-l.done:
		c.Abort()
		return
	}
	// The handler holds the hijacked connection until it is gone.
	<-c.exited
}

// Accept implements transport.Listener.
func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case c := <-l.accepts:
		return c, nil
	case <-l.done:
		return nil, transport.ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements transport.Listener. Accepted connections stay open.
func (l *listener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.srv.Close()
	})
	return err
}

// Addr implements transport.Listener.
func (l *listener) Addr() net.Addr {
	return l.ln.Addr()
}

type conn struct {
	ws     *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	queue  *transport.WriteQueue
	local  net.Addr
	remote net.Addr
	drain  time.Duration

	started        atomic.Bool
	closing        atomic.Bool
	handler        transport.Handler
	exited         chan struct{}
	aborted        chan struct{}
	disconnectOnce sync.Once
	closeOnce      sync.Once
	abortOnce      sync.Once
}

func (e *Engine) newConn(ws *websocket.Conn, local, remote net.Addr) *conn {
	ws.SetReadLimit(int64(e.config.MaxFrameSize))
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		ws:      ws,
		ctx:     ctx,
		cancel:  cancel,
		local:   local,
		remote:  remote,
		drain:   e.config.DrainTimeout,
		exited:  make(chan struct{}),
		aborted: make(chan struct{}),
	}
	c.queue = transport.NewWriteQueue(sink{c}, e.config.WriteQueueDepth, func(error) {
		c.cancel()
	})
	return c
}

type sink struct{ c *conn }

func (s sink) WriteFrame(data []byte) error {
	return s.c.ws.Write(s.c.ctx, websocket.MessageBinary, data)
}

// Flush is a no-op: every message is written whole.
func (s sink) Flush() error { return nil }

func (c *conn) Start(h transport.Handler) error {
	if !c.started.CompareAndSwap(false, true) {
		return transport.ErrAlreadyStarted
	}
	c.handler = h
	go c.readLoop()
	return nil
}

func (c *conn) readLoop() {
	for {
		typ, data, err := c.ws.Read(c.ctx)
		if err != nil {
			c.disconnect(err)
			return
		}
		if typ != websocket.MessageBinary {
			c.ws.Close(websocket.StatusUnsupportedData, "binary messages only")
			c.disconnect(ErrTextMessage)
			return
		}
		c.handler.OnData(data)
	}
}

// disconnect classifies the read error the way a clean close looks on each
// side: nil locally, io.EOF for a normal close by the peer.
func (c *conn) disconnect(err error) {
	c.disconnectOnce.Do(func() {
		status := websocket.CloseStatus(err)
		switch {
		case c.closing.Load():
			err = nil
		case status == websocket.StatusNormalClosure, status == websocket.StatusGoingAway:
			err = io.EOF
		}
		c.queue.Abort()
		c.cancel()
		c.ws.CloseNow()
		close(c.exited)
		c.handler.OnDisconnect(err)
	})
}

func (c *conn) Write(data []byte, done func(error)) error {
	return c.queue.Enqueue(data, done)
}

func (c *conn) Flush() error {
	return c.queue.RequestFlush()
}

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		select {
		case <-c.queue.Close():
		case <-c.aborted:
			return
		case <-time.After(c.drain):
			c.queue.Abort()
		}
		err = c.ws.Close(websocket.StatusNormalClosure, "closed")
		c.cancel()
		c.markExited()
	})
	return err
}

// Abort drops the connection without the closing handshake. It does not wait
// for a Close in progress.
func (c *conn) Abort() error {
	c.abortOnce.Do(func() {
		c.closing.Store(true)
		close(c.aborted)
		c.queue.Abort()
		c.cancel()
		c.ws.CloseNow()
		c.markExited()
	})
	return nil
}

// markExited releases the upgrade handler of a conn that was never started.
func (c *conn) markExited() {
	if !c.started.Load() {
		c.disconnectOnce.Do(func() { close(c.exited) })
	}
}

func (c *conn) IsOpen() bool {
	return !c.closing.Load() && c.queue.Open()
}

func (c *conn) LocalAddr() net.Addr  { return c.local }
func (c *conn) RemoteAddr() net.Addr { return c.remote }

type wsAddr string

func addrOf(s string) net.Addr { return wsAddr(s) }

func (a wsAddr) Network() string { return EngineName }
func (a wsAddr) String() string  { return string(a) }

// Compile-time interface satisfaction checks.
var (
	_ transport.Engine   = (*Engine)(nil)
	_ transport.Listener = (*listener)(nil)
	_ transport.Conn     = (*conn)(nil)
	_ transport.Sink     = sink{}
)
