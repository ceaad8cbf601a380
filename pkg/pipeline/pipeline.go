package pipeline

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// ErrHandlerPanic is matched by errors produced from handler panics.
var ErrHandlerPanic = errors.New("pipeline handler panicked")

// PanicError wraps a value recovered from a handler.
type PanicError struct {
	Handler string
	Value   any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("pipeline handler %q panicked: %v", e.Handler, e.Value)
}

// Is matches ErrHandlerPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanic
}

// Unwrap returns the recovered value if it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

type node[S any] struct {
	index   int
	name    string
	handler any

	opened    OpenedHandler[S]
	closed    ClosedHandler[S]
	received  ReceivedHandler[S]
	sending   SendingHandler[S]
	sent      SentHandler[S]
	exception ExceptionHandler[S]
}

// Pipeline is an immutable handler chain bound to one session. All Fire
// methods are safe for concurrent use.
type Pipeline[S any] struct {
	session S
	edge    Edge[S]
	nodes   []node[S]

	// Node indices per capability, head to tail.
	opened    []int
	closed    []int
	received  []int
	sending   []int
	sent      []int
	exception []int
}

// Session returns the session the pipeline is bound to.
func (p *Pipeline[S]) Session() S {
	return p.session
}

// Names returns handler names from head to tail.
func (p *Pipeline[S]) Names() []string {
	names := make([]string, len(p.nodes))
	for i, n := range p.nodes {
		names[i] = n.name
	}
	return names
}

// Get returns the handler registered under name.
func (p *Pipeline[S]) Get(name string) (any, bool) {
	for _, n := range p.nodes {
		if n.name == name {
			return n.handler, true
		}
	}
	return nil, false
}

// Len returns the number of handlers.
func (p *Pipeline[S]) Len() int {
	return len(p.nodes)
}

// FireOpened notifies handlers, head to tail, that the session is active.
func (p *Pipeline[S]) FireOpened() {
	p.fireOpened(0)
}

func (p *Pipeline[S]) fireOpened(i int) {
	if i >= len(p.opened) {
		return
	}
	n := &p.nodes[p.opened[i]]
	p.guard(n, func() {
		n.opened.SessionOpened(p.session, once0(func() { p.fireOpened(i + 1) }))
	})
}

// FireClosed notifies handlers, head to tail, that the session closed.
func (p *Pipeline[S]) FireClosed(reason error) {
	p.fireClosed(0, reason)
}

func (p *Pipeline[S]) fireClosed(i int, reason error) {
	if i >= len(p.closed) {
		return
	}
	n := &p.nodes[p.closed[i]]
	p.guard(n, func() {
		n.closed.SessionClosed(p.session, reason, once0(func() { p.fireClosed(i+1, reason) }))
	})
}

// FireReceived dispatches an inbound message head to tail. A message that
// passes every handler goes to the edge's Unconsumed sink.
func (p *Pipeline[S]) FireReceived(msg any, ch wire.ChannelID) {
	p.fireReceived(0, msg, ch)
}

func (p *Pipeline[S]) fireReceived(i int, msg any, ch wire.ChannelID) {
	if i >= len(p.received) {
		p.edge.Unconsumed(p.session, msg, ch)
		return
	}
	n := &p.nodes[p.received[i]]
	p.guard(n, func() {
		n.received.MessageReceived(p.session, msg, ch, once1(func(m any) { p.fireReceived(i+1, m, ch) }))
	})
}

// FireSending dispatches an outbound message tail to head and hands the
// result to the edge's Write. It reports whether the message reached the
// edge and the error Write returned. A handler panic is raised as an
// exception and also returned. done is passed to Write unchanged and is
// never called for a message a handler consumed.
func (p *Pipeline[S]) FireSending(msg any, ch wire.ChannelID, done func(error)) (bool, error) {
	var (
		reached bool
		werr    error
	)
	write := func(m any) {
		reached = true
		werr = p.edge.Write(p.session, m, ch, done)
	}
	fail := func(err error) { werr = err }
	p.fireSending(len(p.sending)-1, msg, ch, write, fail)
	return reached, werr
}

func (p *Pipeline[S]) fireSending(i int, msg any, ch wire.ChannelID, write func(any), fail func(error)) {
	if i < 0 {
		write(msg)
		return
	}
	n := &p.nodes[p.sending[i]]
	defer func() {
		if r := recover(); r != nil {
			err := &PanicError{Handler: n.name, Value: r}
			fail(err)
			p.fireExceptionFrom(n.index, err)
		}
	}()
	n.sending.Sending(p.session, msg, ch, once1(func(m any) { p.fireSending(i-1, m, ch, write, fail) }))
}

// FireSent notifies handlers, tail to head, that msg was written.
func (p *Pipeline[S]) FireSent(msg any, ch wire.ChannelID) {
	p.fireSent(len(p.sent)-1, msg, ch)
}

func (p *Pipeline[S]) fireSent(i int, msg any, ch wire.ChannelID) {
	if i < 0 {
		return
	}
	n := &p.nodes[p.sent[i]]
	p.guard(n, func() {
		n.sent.MessageSent(p.session, msg, ch, once1(func(m any) { p.fireSent(i-1, m, ch) }))
	})
}

// FireExceptionCaught raises err at the head of the chain.
func (p *Pipeline[S]) FireExceptionCaught(err error) {
	p.fireExceptionFrom(0, err)
}

// fireExceptionFrom delivers err to the first exception handler at or after
// node index at.
func (p *Pipeline[S]) fireExceptionFrom(at int, err error) {
	for i, idx := range p.exception {
		if idx >= at {
			p.fireException(i, err)
			return
		}
	}
	p.edge.Unhandled(p.session, err)
}

func (p *Pipeline[S]) fireException(i int, err error) {
	if i >= len(p.exception) {
		p.edge.Unhandled(p.session, err)
		return
	}
	n := &p.nodes[p.exception[i]]
	defer func() {
		if r := recover(); r != nil {
			p.edge.Unhandled(p.session, errors.Join(err, &PanicError{Handler: n.name, Value: r}))
		}
	}()
	n.exception.ExceptionCaught(p.session, err, once1(func(e error) { p.fireException(i+1, e) }))
}

// guard runs fn and turns a panic into an exception raised at n.
func (p *Pipeline[S]) guard(n *node[S], fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.fireExceptionFrom(n.index, &PanicError{Handler: n.name, Value: r})
		}
	}()
	fn()
}

func once0(fn func()) func() {
	var called atomic.Bool
	return func() {
		if called.CompareAndSwap(false, true) {
			fn()
		}
	}
}

func once1[T any](fn func(T)) func(T) {
	var called atomic.Bool
	return func(v T) {
		if called.CompareAndSwap(false, true) {
			fn(v)
		}
	}
}
