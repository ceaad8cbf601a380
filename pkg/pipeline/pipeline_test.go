package pipeline_test

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PorkStudios/PorkLib-sub015/pkg/pipeline"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

type testSession struct {
	name string
}

type recordingEdge struct {
	mu         sync.Mutex
	written    []any
	unconsumed []any
	unhandled  []error
	writeErr   error
}

func (e *recordingEdge) Write(s *testSession, msg any, ch wire.ChannelID, done func(error)) error {
	e.mu.Lock()
	e.written = append(e.written, msg)
	e.mu.Unlock()
	if done != nil {
		done(e.writeErr)
	}
	return e.writeErr
}

func (e *recordingEdge) Unconsumed(s *testSession, msg any, ch wire.ChannelID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unconsumed = append(e.unconsumed, msg)
}

func (e *recordingEdge) Unhandled(s *testSession, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unhandled = append(e.unhandled, err)
}

// tagger appends its tag to string messages in both directions and records
// the order it saw events in.
type tagger struct {
	tag   string
	trace *[]string
}

func (h *tagger) MessageReceived(s *testSession, msg any, ch wire.ChannelID, next pipeline.Next) {
	*h.trace = append(*h.trace, "recv:"+h.tag)
	next(msg.(string) + h.tag)
}

func (h *tagger) Sending(s *testSession, msg any, ch wire.ChannelID, next pipeline.Next) {
	*h.trace = append(*h.trace, "send:"+h.tag)
	next(msg.(string) + h.tag)
}

func (h *tagger) SessionOpened(s *testSession, next func()) {
	*h.trace = append(*h.trace, "open:"+h.tag)
	next()
}

func (h *tagger) SessionClosed(s *testSession, reason error, next func()) {
	*h.trace = append(*h.trace, "close:"+h.tag)
	next()
}

func (h *tagger) MessageSent(s *testSession, msg any, ch wire.ChannelID, next pipeline.Next) {
	*h.trace = append(*h.trace, "sent:"+h.tag)
	next(msg)
}

func build(t *testing.T, b *pipeline.Builder[*testSession]) (*pipeline.Pipeline[*testSession], *recordingEdge) {
	t.Helper()
	edge := &recordingEdge{}
	p, err := b.Build(&testSession{name: "s"}, edge)
	require.NoError(t, err)
	return p, edge
}

func TestPipelineOrdering(t *testing.T) {
	var trace []string
	b := pipeline.NewBuilder[*testSession]().
		AddLast("b", &tagger{tag: "B", trace: &trace}).
		AddLast("c", &tagger{tag: "C", trace: &trace}).
		AddFirst("a", &tagger{tag: "A", trace: &trace})
	p, edge := build(t, b)
	assert.Equal(t, []string{"a", "b", "c"}, p.Names())

	p.FireOpened()
	p.FireReceived("in:", 0)
	reached, err := p.FireSending("out:", 0, nil)
	require.True(t, reached)
	require.NoError(t, err)
	p.FireSent("out:", 0)
	p.FireClosed(nil)

	assert.Equal(t, []string{
		"open:A", "open:B", "open:C",
		"recv:A", "recv:B", "recv:C",
		"send:C", "send:B", "send:A",
		"sent:C", "sent:B", "sent:A",
		"close:A", "close:B", "close:C",
	}, trace)
	assert.Equal(t, []any{"in:ABC"}, edge.unconsumed)
	assert.Equal(t, []any{"out:CBA"}, edge.written)
}

func TestPipelineShortCircuit(t *testing.T) {
	var trace []string
	swallow := pipeline.ReceivedFunc[*testSession](func(s *testSession, msg any, ch wire.ChannelID, next pipeline.Next) {
		trace = append(trace, "swallow")
	})
	drop := pipeline.SendingFunc[*testSession](func(s *testSession, msg any, ch wire.ChannelID, next pipeline.Next) {})

	b := pipeline.NewBuilder[*testSession]().
		AddLast("head", &tagger{tag: "H", trace: &trace}).
		AddLast("swallow", swallow).
		AddLast("drop", drop).
		AddLast("tail", &tagger{tag: "T", trace: &trace})
	p, edge := build(t, b)

	p.FireReceived("x", 0)
	reached, err := p.FireSending("y", 0, func(error) { t.Error("done called for dropped message") })
	assert.False(t, reached)
	assert.NoError(t, err)

	assert.Equal(t, []string{"recv:H", "swallow", "send:T"}, trace)
	assert.Empty(t, edge.unconsumed)
	assert.Empty(t, edge.written)
}

func TestPipelineNextCalledTwice(t *testing.T) {
	double := pipeline.ReceivedFunc[*testSession](func(s *testSession, msg any, ch wire.ChannelID, next pipeline.Next) {
		next(msg)
		next(msg)
	})
	p, edge := build(t, pipeline.NewBuilder[*testSession]().AddLast("double", double))
	p.FireReceived("once", 0)
	assert.Equal(t, []any{"once"}, edge.unconsumed)
}

func TestPipelineWriteError(t *testing.T) {
	p, edge := build(t, pipeline.NewBuilder[*testSession]())
	edge.writeErr = errors.New("write buffer full")

	var doneErr error
	reached, err := p.FireSending([]byte("x"), 3, func(err error) { doneErr = err })
	assert.True(t, reached)
	assert.ErrorIs(t, err, edge.writeErr)
	assert.ErrorIs(t, doneErr, edge.writeErr)
}

func TestPipelineSendingPanic(t *testing.T) {
	errEncode := errors.New("cannot encode")
	enc := pipeline.SendingFunc[*testSession](func(s *testSession, msg any, ch wire.ChannelID, next pipeline.Next) {
		panic(errEncode)
	})
	p, edge := build(t, pipeline.NewBuilder[*testSession]().AddLast("enc", enc))

	reached, err := p.FireSending("x", 0, nil)
	assert.False(t, reached)
	assert.ErrorIs(t, err, pipeline.ErrHandlerPanic)
	assert.ErrorIs(t, err, errEncode)
	assert.Empty(t, edge.written)
	require.Len(t, edge.unhandled, 1)
	assert.ErrorIs(t, edge.unhandled[0], errEncode)
}

func TestPipelineTypedReceived(t *testing.T) {
	var ints []int
	h := pipeline.OnReceived(func(s *testSession, msg int, ch wire.ChannelID, next pipeline.Next) {
		ints = append(ints, msg)
	})
	p, edge := build(t, pipeline.NewBuilder[*testSession]().AddLast("ints", h))

	p.FireReceived(4, 0)
	p.FireReceived("text", 0)
	assert.Equal(t, []int{4}, ints)
	assert.Equal(t, []any{"text"}, edge.unconsumed)
}

func TestPipelineExceptionPropagation(t *testing.T) {
	var seen []string
	observer := func(name string, consume bool) pipeline.ExceptionFunc[*testSession] {
		return func(s *testSession, err error, next func(error)) {
			seen = append(seen, name)
			if !consume {
				next(fmt.Errorf("%s: %w", name, err))
			}
		}
	}
	thrower := pipeline.ReceivedFunc[*testSession](func(s *testSession, msg any, ch wire.ChannelID, next pipeline.Next) {
		panic("bad packet")
	})

	t.Run("starts at thrower and falls off the tail", func(t *testing.T) {
		seen = nil
		b := pipeline.NewBuilder[*testSession]().
			AddLast("before", observer("before", false)).
			AddLast("thrower", thrower).
			AddLast("after", observer("after", false))
		p, edge := build(t, b)

		p.FireReceived("x", 0)
		assert.Equal(t, []string{"after"}, seen)
		require.Len(t, edge.unhandled, 1)
		assert.ErrorIs(t, edge.unhandled[0], pipeline.ErrHandlerPanic)
		assert.True(t, strings.HasPrefix(edge.unhandled[0].Error(), "after: "))

		var pe *pipeline.PanicError
		require.True(t, errors.As(edge.unhandled[0], &pe))
		assert.Equal(t, "thrower", pe.Handler)
	})

	t.Run("consumed", func(t *testing.T) {
		seen = nil
		b := pipeline.NewBuilder[*testSession]().
			AddLast("thrower", thrower).
			AddLast("catch", observer("catch", true))
		p, edge := build(t, b)

		p.FireReceived("x", 0)
		assert.Equal(t, []string{"catch"}, seen)
		assert.Empty(t, edge.unhandled)
	})

	t.Run("transport errors start at the head", func(t *testing.T) {
		seen = nil
		b := pipeline.NewBuilder[*testSession]().
			AddLast("one", observer("one", false)).
			AddLast("two", observer("two", false))
		p, edge := build(t, b)

		cause := errors.New("connection reset")
		p.FireExceptionCaught(cause)
		assert.Equal(t, []string{"one", "two"}, seen)
		require.Len(t, edge.unhandled, 1)
		assert.ErrorIs(t, edge.unhandled[0], cause)
	})

	t.Run("panicking exception handler", func(t *testing.T) {
		bad := pipeline.ExceptionFunc[*testSession](func(s *testSession, err error, next func(error)) {
			panic("handler bug")
		})
		p, edge := build(t, pipeline.NewBuilder[*testSession]().AddLast("bad", bad))

		cause := errors.New("io")
		p.FireExceptionCaught(cause)
		require.Len(t, edge.unhandled, 1)
		assert.ErrorIs(t, edge.unhandled[0], cause)
		assert.ErrorIs(t, edge.unhandled[0], pipeline.ErrHandlerPanic)
	})
}

func TestBuilderErrors(t *testing.T) {
	noop := pipeline.ReceivedFunc[*testSession](func(*testSession, any, wire.ChannelID, pipeline.Next) {})

	tests := []struct {
		name    string
		build   func(b *pipeline.Builder[*testSession])
		wantErr error
	}{
		{
			name: "duplicate name",
			build: func(b *pipeline.Builder[*testSession]) {
				b.AddLast("x", noop).AddFirst("x", noop)
			},
			wantErr: pipeline.ErrDuplicateHandler,
		},
		{
			name:    "no capability",
			build:   func(b *pipeline.Builder[*testSession]) { b.AddLast("x", struct{}{}) },
			wantErr: pipeline.ErrNoCapability,
		},
		{
			name:    "nil handler",
			build:   func(b *pipeline.Builder[*testSession]) { b.AddLast("x", nil) },
			wantErr: pipeline.ErrNilHandler,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := pipeline.NewBuilder[*testSession]()
			tt.build(b)
			_, err := b.Build(&testSession{}, &recordingEdge{})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBuilderGeneratedNames(t *testing.T) {
	noop := pipeline.ReceivedFunc[*testSession](func(*testSession, any, wire.ChannelID, pipeline.Next) {})
	b := pipeline.NewBuilder[*testSession]().AddLast("", noop).AddLast("", noop)
	require.NoError(t, b.Err())
	assert.Equal(t, []string{"0", "1"}, b.Names())

	p, _ := build(t, b)
	h, ok := p.Get("1")
	assert.True(t, ok)
	assert.NotNil(t, h)
	assert.Equal(t, 2, p.Len())
}

func TestPipelineConcurrentDispatch(t *testing.T) {
	counter := pipeline.ReceivedFunc[*testSession](func(s *testSession, msg any, ch wire.ChannelID, next pipeline.Next) {
		next(msg.(int) + 1)
	})
	p, edge := build(t, pipeline.NewBuilder[*testSession]().AddLast("inc", counter))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			p.FireReceived(v, 0)
		}(i)
	}
	wg.Wait()
	assert.Len(t, edge.unconsumed, 50)
}
