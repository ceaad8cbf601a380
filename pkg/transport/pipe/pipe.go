// Package pipe is an in-process transport engine. Connected conns exchange
// messages over a pair of bounded lock-free SPSC rings, so a client and a
// server in one process can talk without sockets. It honors every
// reliability level.
package pipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"

	"github.com/PorkStudios/PorkLib-sub015/pkg/framing"
	"github.com/PorkStudios/PorkLib-sub015/pkg/transport"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// EngineName is the name the engine registers under.
const EngineName = "pipe"

// DefaultCapacity is the ring capacity per direction.
const DefaultCapacity = 1024

// Pipe errors.
var (
	ErrAddressInUse = errors.New("pipe address in use")
	ErrNoListener   = errors.New("no pipe listener")
)

// Config configures the engine.
type Config struct {
	// Capacity is the ring capacity per direction.
	Capacity int

	// MaxFrameSize is passed to the datagram framer.
	MaxFrameSize uint32

	// WriteQueueDepth is the per-conn write queue depth.
	WriteQueueDepth int
}

// Engine implements transport.Engine in memory. Listeners are scoped to
// the Engine value; dial and listen on the same Engine.
type Engine struct {
	config Config

	mu        sync.Mutex
	listeners map[string]*listener
	serial    atomix.Uint32
}

// New creates a pipe engine.
func New(config Config) *Engine {
	if config.Capacity <= 0 {
		config.Capacity = DefaultCapacity
	}
	return &Engine{config: config, listeners: make(map[string]*listener)}
}

// Name implements transport.Engine.
func (e *Engine) Name() string { return EngineName }

// Reliabilities implements transport.Engine.
func (e *Engine) Reliabilities() wire.ReliabilitySet { return wire.AllReliabilities }

// SupportsReliability implements transport.Engine.
func (e *Engine) SupportsReliability(r wire.Reliability) bool { return wire.AllReliabilities.Has(r) }

// NewFramer implements transport.Engine.
func (e *Engine) NewFramer() framing.Framer {
	return framing.NewDatagramFramer(e.config.MaxFrameSize)
}

// Listen implements transport.Engine. An empty addr or one ending in ":0"
// picks a fresh name.
func (e *Engine) Listen(ctx context.Context, addr string) (transport.Listener, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if addr == "" || strings.HasSuffix(addr, ":0") {
		addr = fmt.Sprintf("pipe-%d", e.serial.Add(1))
	}
	if _, ok := e.listeners[addr]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAddressInUse, addr)
	}
	l := &listener{
		engine:  e,
		addr:    Addr(addr),
		accepts: make(chan *conn),
		done:    make(chan struct{}),
	}
	e.listeners[addr] = l
	return l, nil
}

// Dial implements transport.Engine.
func (e *Engine) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	e.mu.Lock()
	l, ok := e.listeners[addr]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoListener, addr)
	}

	var err error
	id := e.serial.Add(1)
	client, server := e.newPair(Addr(fmt.Sprintf("%s#%d", addr, id)), l.addr)

	select {
	case l.accepts <- server:
		return client, nil
	case <-l.done:
		err = transport.ErrListenerClosed
	case <-ctx.Done():
		err = ctx.Err()
	}
	client.Abort()
	server.Abort()
	return nil, err
}

func (e *Engine) remove(l *listener) {
	e.mu.Lock()
	if e.listeners[string(l.addr)] == l {
		delete(e.listeners, string(l.addr))
	}
	e.mu.Unlock()
}

type listener struct {
	engine  *Engine
	addr    Addr
	accepts chan *conn
	done    chan struct{}
	once    sync.Once
}

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

func (l *listener) Close() error {
	l.once.Do(func() {
		close(l.done)
		l.engine.remove(l)
	})
	return nil
}

func (l *listener) Addr() net.Addr { return l.addr }

// Addr is a pipe address.
type Addr string

// Network implements net.Addr.
func (a Addr) Network() string { return EngineName }

func (a Addr) String() string { return string(a) }

// pair is the shared state of two connected conns. Each ring has exactly
// one producer (the sender's write queue goroutine) and one consumer (the
// receiver's read goroutine).
type pair struct {
	ab     lfq.SPSC[[]byte]
	ba     lfq.SPSC[[]byte]
	closed atomix.Uint32
}

func (e *Engine) newPair(clientAddr, serverAddr Addr) (*conn, *conn) {
	p := &pair{}
	p.ab.Init(e.config.Capacity)
	p.ba.Init(e.config.Capacity)

	a := newConn(p, &p.ab, &p.ba, clientAddr, serverAddr)
	b := newConn(p, &p.ba, &p.ab, serverAddr, clientAddr)
	a.peer, b.peer = b, a
	a.queue = transport.NewWriteQueue(sink{a}, e.config.WriteQueueDepth, nil)
	b.queue = transport.NewWriteQueue(sink{b}, e.config.WriteQueueDepth, nil)
	return a, b
}

type conn struct {
	pair   *pair
	send   *lfq.SPSC[[]byte]
	recv   *lfq.SPSC[[]byte]
	peer   *conn
	queue  *transport.WriteQueue
	local  Addr
	remote Addr

	// notify wakes the read goroutine after the peer enqueued or closed.
	notify chan struct{}
	stop   chan struct{}
	// abort is closed by Abort to cut a draining Close short.
	abort chan struct{}

	started        atomic.Bool
	closing        atomic.Bool
	aborted        atomic.Bool
	handler        transport.Handler
	stopOnce       sync.Once
	closeOnce      sync.Once
	abortOnce      sync.Once
	disconnectOnce sync.Once
}

func newConn(p *pair, send, recv *lfq.SPSC[[]byte], local, remote Addr) *conn {
	return &conn{
		pair:   p,
		send:   send,
		recv:   recv,
		local:  local,
		remote: remote,
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		abort:  make(chan struct{}),
	}
}

func (c *conn) isClosed() bool {
	return c.pair.closed.Add(0) > 0
}

type sink struct{ c *conn }

// WriteFrame waits with adaptive backoff while the ring is full.
func (s sink) WriteFrame(data []byte) error {
	var bo iox.Backoff
	for {
		if s.c.isClosed() || s.c.aborted.Load() {
			return transport.ErrTransportClosed
		}
		msg := data
		err := s.c.send.Enqueue(&msg)
		if err == nil {
			s.c.peer.wake()
			return nil
		}
		if !errors.Is(err, iox.ErrWouldBlock) {
			return err
		}
		bo.Wait()
	}
}

func (s sink) Flush() error { return nil }

func (c *conn) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

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
		msg, err := c.recv.Dequeue()
		if err == nil {
			c.handler.OnData(msg)
			continue
		}
		if c.isClosed() {
			// Everything the peer wrote before closing is already in the ring.
			if msg, err := c.recv.Dequeue(); err == nil {
				c.handler.OnData(msg)
				continue
			}
			c.disconnect(io.EOF)
			return
		}
		select {
		case <-c.notify:
		case <-c.stop:
			c.disconnect(nil)
			return
		}
	}
}

func (c *conn) disconnect(err error) {
	c.disconnectOnce.Do(func() {
		if c.closing.Load() {
			err = nil
		}
		c.queue.Abort()
		c.handler.OnDisconnect(err)
	})
}

// shutdown marks the pair closed and wakes both readers.
func (c *conn) shutdown() {
	c.pair.closed.Add(1)
	c.stopOnce.Do(func() { close(c.stop) })
	c.peer.wake()
}

func (c *conn) Write(data []byte, done func(error)) error {
	if c.isClosed() {
		return transport.ErrTransportClosed
	}
	return c.queue.Enqueue(data, done)
}

func (c *conn) Flush() error {
	return c.queue.RequestFlush()
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		done := c.queue.Close()
		select {
		case <-done:
		case <-c.abort:
		case <-time.After(transport.DefaultDrainTimeout):
			c.aborted.Store(true)
			c.queue.Abort()
			<-done
		}
		c.shutdown()
	})
	return nil
}

// Abort does not wait for a Close in progress.
func (c *conn) Abort() error {
	c.abortOnce.Do(func() {
		c.closing.Store(true)
		c.aborted.Store(true)
		close(c.abort)
		c.shutdown()
		c.queue.Abort()
	})
	return nil
}

func (c *conn) IsOpen() bool {
	return !c.closing.Load() && !c.isClosed() && c.queue.Open()
}

func (c *conn) LocalAddr() net.Addr  { return c.local }
func (c *conn) RemoteAddr() net.Addr { return c.remote }

// Compile-time interface satisfaction checks.
var (
	_ transport.Engine   = (*Engine)(nil)
	_ transport.Listener = (*listener)(nil)
	_ transport.Conn     = (*conn)(nil)
	_ transport.Sink     = sink{}
)
