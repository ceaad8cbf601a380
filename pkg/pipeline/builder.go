package pipeline

import (
	"errors"
	"fmt"
	"strconv"
)

// Builder errors.
var (
	ErrDuplicateHandler = errors.New("duplicate handler name")
	ErrNoCapability     = errors.New("handler implements no pipeline capability")
	ErrNilHandler       = errors.New("nil handler")
)

type entry struct {
	name    string
	handler any
}

// Builder collects handlers before a Pipeline is built. Errors are
// remembered and reported by Build.
type Builder[S any] struct {
	entries  []entry
	fallback int
	err      error
}

// NewBuilder returns an empty builder.
func NewBuilder[S any]() *Builder[S] {
	return &Builder[S]{}
}

// AddFirst inserts h at the head (transport side). An empty name is
// replaced by a generated one.
func (b *Builder[S]) AddFirst(name string, h any) *Builder[S] {
	if e, ok := b.check(name, h); ok {
		b.entries = append([]entry{e}, b.entries...)
	}
	return b
}

// AddLast appends h at the tail (application side). An empty name is
// replaced by a generated one.
func (b *Builder[S]) AddLast(name string, h any) *Builder[S] {
	if e, ok := b.check(name, h); ok {
		b.entries = append(b.entries, e)
	}
	return b
}

func (b *Builder[S]) check(name string, h any) (entry, bool) {
	if b.err != nil {
		return entry{}, false
	}
	if name == "" {
		name = strconv.FormatInt(int64(b.fallback), 16)
		b.fallback++
	}
	switch {
	case h == nil:
		b.err = fmt.Errorf("%w: %q", ErrNilHandler, name)
	case !hasCapability[S](h):
		b.err = fmt.Errorf("%w: %q (%T)", ErrNoCapability, name, h)
	case b.Contains(name):
		b.err = fmt.Errorf("%w: %q", ErrDuplicateHandler, name)
	default:
		return entry{name: name, handler: h}, true
	}
	return entry{}, false
}

// Contains reports whether a handler with the given name was added.
func (b *Builder[S]) Contains(name string) bool {
	for _, e := range b.entries {
		if e.name == name {
			return true
		}
	}
	return false
}

// Names returns handler names from head to tail.
func (b *Builder[S]) Names() []string {
	names := make([]string, len(b.entries))
	for i, e := range b.entries {
		names[i] = e.name
	}
	return names
}

// Err returns the first registration error.
func (b *Builder[S]) Err() error {
	return b.err
}

// Build freezes the handler chain for session.
func (b *Builder[S]) Build(session S, edge Edge[S]) (*Pipeline[S], error) {
	if b.err != nil {
		return nil, b.err
	}
	if edge == nil {
		return nil, errors.New("pipeline: nil edge")
	}

	p := &Pipeline[S]{
		session: session,
		edge:    edge,
		nodes:   make([]node[S], len(b.entries)),
	}
	for i, e := range b.entries {
		n := node[S]{index: i, name: e.name, handler: e.handler}
		if h, ok := e.handler.(OpenedHandler[S]); ok {
			n.opened = h
			p.opened = append(p.opened, i)
		}
		if h, ok := e.handler.(ClosedHandler[S]); ok {
			n.closed = h
			p.closed = append(p.closed, i)
		}
		if h, ok := e.handler.(ReceivedHandler[S]); ok {
			n.received = h
			p.received = append(p.received, i)
		}
		if h, ok := e.handler.(SendingHandler[S]); ok {
			n.sending = h
			p.sending = append(p.sending, i)
		}
		if h, ok := e.handler.(SentHandler[S]); ok {
			n.sent = h
			p.sent = append(p.sent, i)
		}
		if h, ok := e.handler.(ExceptionHandler[S]); ok {
			n.exception = h
			p.exception = append(p.exception, i)
		}
		p.nodes[i] = n
	}
	return p, nil
}
