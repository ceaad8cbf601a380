package session

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/PorkStudios/PorkLib-sub015/pkg/framing"
	"github.com/PorkStudios/PorkLib-sub015/pkg/future"
	"github.com/PorkStudios/PorkLib-sub015/pkg/pipeline"
	"github.com/PorkStudios/PorkLib-sub015/pkg/transport"
	"github.com/PorkStudios/PorkLib-sub015/pkg/transport/pipe"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// mockConn is a transport.Conn whose writes are recorded by testify.
type mockConn struct {
	mock.Mock

	mu      sync.Mutex
	handler transport.Handler
	once    sync.Once
}

func (c *mockConn) Start(h transport.Handler) error {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
	return nil
}

func (c *mockConn) Write(data []byte, done func(error)) error {
	err := c.Called(data).Error(0)
	if err == nil && done != nil {
		done(nil)
	}
	return err
}

func (c *mockConn) Flush() error { return c.Called().Error(0) }
func (c *mockConn) Close() error { c.disconnect(); return nil }
func (c *mockConn) Abort() error { c.disconnect(); return nil }
func (c *mockConn) IsOpen() bool { return true }

func (c *mockConn) LocalAddr() net.Addr  { return pipe.Addr("mock-local") }
func (c *mockConn) RemoteAddr() net.Addr { return pipe.Addr("mock-remote") }

func (c *mockConn) disconnect() {
	c.once.Do(func() {
		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h != nil {
			go h.OnDisconnect(nil)
		}
	})
}

// deliver feeds packets to the session as if the transport read them.
func (c *mockConn) deliver(t *testing.T, packets ...wire.ChanneledPacket) {
	t.Helper()
	f := framing.NewDatagramFramer(0)
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	require.NotNil(t, h, "session not started")
	for _, p := range packets {
		data, err := f.Pack(p)
		require.NoError(t, err)
		h.OnData(data)
	}
}

// fakeTransport declares a fixed set of reliabilities.
type fakeTransport struct {
	name string
	rels wire.ReliabilitySet
}

func (f fakeTransport) Name() string                      { return f.name }
func (f fakeTransport) Reliabilities() wire.ReliabilitySet { return f.rels }
func (f fakeTransport) NewFramer() framing.Framer          { return framing.NewDatagramFramer(0) }

var reliableOnly = fakeTransport{name: "fake", rels: wire.NewReliabilitySet(wire.Reliable, wire.ReliableOrdered)}

// stringCodec turns strings into bytes on the way out and back on the way in.
type stringCodec struct{}

func (stringCodec) Sending(s *Session, msg any, ch wire.ChannelID, next pipeline.Next) {
	if str, ok := msg.(string); ok {
		next([]byte(str))
		return
	}
	next(msg)
}

func (stringCodec) MessageReceived(s *Session, msg any, ch wire.ChannelID, next pipeline.Next) {
	if b, ok := msg.([]byte); ok {
		next(string(b))
		return
	}
	next(msg)
}

type received struct {
	msg string
	ch  wire.ChannelID
}

// recorder collects string messages reaching the end of the pipeline.
type recorder struct {
	got chan received
}

func newRecorder() *recorder {
	return &recorder{got: make(chan received, 64)}
}

func (r *recorder) MessageReceived(s *Session, msg any, ch wire.ChannelID, next pipeline.Next) {
	if str, ok := msg.(string); ok {
		r.got <- received{str, ch}
		return
	}
	next(msg)
}

func (r *recorder) next(t *testing.T) received {
	t.Helper()
	select {
	case m := <-r.got:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return received{}
	}
}

func chain(handlers ...any) *pipeline.Builder[*Session] {
	b := pipeline.NewBuilder[*Session]().AddLast("codec", stringCodec{})
	for _, h := range handlers {
		b.AddLast("", h)
	}
	return b
}

func newMockSession(t *testing.T, tr Transport, handlers *pipeline.Builder[*Session], cfg Config) (*Session, *mockConn) {
	t.Helper()
	conn := &mockConn{}
	s, err := New(conn, tr, handlers, cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.CloseNow(nil) })
	return s, conn
}

type pairConfig struct {
	clientHandlers *pipeline.Builder[*Session]
	serverHandlers *pipeline.Builder[*Session]
	client         Config
	server         Config
	serverTr       Transport
}

// newPair connects two sessions over an in-process pipe.
func newPair(t *testing.T, pc pairConfig) (client, server *Session) {
	t.Helper()
	ctx := context.Background()
	e := pipe.New(pipe.Config{})
	ln, err := e.Listen(ctx, "")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	accepted := make(chan transport.Conn, 1)
	go func() {
		if c, err := ln.Accept(ctx); err == nil {
			accepted <- c
		}
	}()
	cc, err := e.Dial(ctx, ln.Addr().String())
	require.NoError(t, err)
	sc := <-accepted

	var serverTr Transport = e
	if pc.serverTr != nil {
		serverTr = pc.serverTr
	}
	if pc.client.DefaultReliability == 0 {
		pc.client.DefaultReliability = wire.ReliableOrdered
	}
	if pc.server.DefaultReliability == 0 {
		pc.server.DefaultReliability = wire.ReliableOrdered
	}

	server, err = New(sc, serverTr, pc.serverHandlers, pc.server)
	require.NoError(t, err)
	client, err = New(cc, e, pc.clientHandlers, pc.client)
	require.NoError(t, err)
	require.NoError(t, server.Start())
	require.NoError(t, client.Start())

	t.Cleanup(func() {
		client.CloseNow(nil)
		server.CloseNow(nil)
	})
	return client, server
}

// await waits for a future with a test timeout.
func await[T any](t *testing.T, f future.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return f.Await(ctx)
}
