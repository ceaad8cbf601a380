package transport

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Stream connection defaults.
const (
	// DefaultReadBufferSize is the size of the read buffer per connection.
	DefaultReadBufferSize = 32 * 1024

	// DefaultDrainTimeout bounds how long Close waits for queued writes.
	DefaultDrainTimeout = 5 * time.Second
)

// StreamOptions configures a StreamConn.
type StreamOptions struct {
	// WriteQueueDepth is the number of writes that may be queued.
	WriteQueueDepth int

	// ReadBufferSize is the read buffer size.
	ReadBufferSize int

	// DrainTimeout bounds the graceful close.
	DrainTimeout time.Duration
}

// StreamConn adapts a net.Conn byte stream to Conn.
type StreamConn struct {
	nc      net.Conn
	bw      *bufio.Writer
	queue   *WriteQueue
	opts    StreamOptions
	started atomic.Bool
	closing atomic.Bool

	handler        Handler
	disconnectOnce sync.Once
	closeOnce      sync.Once
	abortOnce      sync.Once
	aborted        chan struct{}
	netOnce        sync.Once
	netErr         error
}

// NewStreamConn wraps nc. The writer goroutine starts immediately; reads
// start with Start.
func NewStreamConn(nc net.Conn, opts StreamOptions) *StreamConn {
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = DefaultReadBufferSize
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}
	c := &StreamConn{
		nc:      nc,
		bw:      bufio.NewWriter(nc),
		opts:    opts,
		aborted: make(chan struct{}),
	}
	c.queue = NewWriteQueue(streamSink{c}, opts.WriteQueueDepth, func(error) {
		// A failed write leaves the stream in an unknown state.
		_ = c.nc.Close()
	})
	return c
}

type streamSink struct{ c *StreamConn }

func (s streamSink) WriteFrame(data []byte) error {
	_, err := s.c.bw.Write(data)
	return err
}

func (s streamSink) Flush() error {
	return s.c.bw.Flush()
}

// NetConn returns the wrapped connection.
func (c *StreamConn) NetConn() net.Conn {
	return c.nc
}

// Start implements Conn.
func (c *StreamConn) Start(h Handler) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	c.handler = h
	go c.readLoop()
	return nil
}

func (c *StreamConn) readLoop() {
	buf := make([]byte, c.opts.ReadBufferSize)
	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			c.handler.OnData(buf[:n])
		}
		if err != nil {
			c.disconnect(err)
			return
		}
	}
}

func (c *StreamConn) disconnect(err error) {
	c.disconnectOnce.Do(func() {
		if c.closing.Load() && !errors.Is(err, io.EOF) {
			err = nil
		}
		c.queue.Abort()
		_ = c.nc.Close()
		c.handler.OnDisconnect(err)
	})
}

// Write implements Conn.
func (c *StreamConn) Write(data []byte, done func(error)) error {
	return c.queue.Enqueue(data, done)
}

// Flush implements Conn.
func (c *StreamConn) Flush() error {
	return c.queue.RequestFlush()
}

// Close implements Conn. It blocks until queued writes are written, the
// drain timeout expires or Abort is called.
func (c *StreamConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		select {
		case <-c.queue.Close():
		case <-c.aborted:
		case <-time.After(c.opts.DrainTimeout):
			c.queue.Abort()
		}
		err = c.closeNet()
	})
	return err
}

// Abort implements Conn. It does not wait for a Close in progress and cuts
// its drain short.
func (c *StreamConn) Abort() error {
	var err error
	c.abortOnce.Do(func() {
		c.closing.Store(true)
		close(c.aborted)
		c.queue.Abort()
		err = c.closeNet()
	})
	return err
}

func (c *StreamConn) closeNet() error {
	c.netOnce.Do(func() { c.netErr = c.nc.Close() })
	return c.netErr
}

// IsOpen implements Conn.
func (c *StreamConn) IsOpen() bool {
	return !c.closing.Load() && c.queue.Open()
}

// LocalAddr implements Conn.
func (c *StreamConn) LocalAddr() net.Addr {
	return c.nc.LocalAddr()
}

// RemoteAddr implements Conn.
func (c *StreamConn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// Compile-time interface satisfaction check.
var _ Conn = (*StreamConn)(nil)
