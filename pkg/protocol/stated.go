package protocol

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/PorkStudios/PorkLib-sub015/pkg/log"
	"github.com/PorkStudios/PorkLib-sub015/pkg/pipeline"
	"github.com/PorkStudios/PorkLib-sub015/pkg/session"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// StateFunc reports the protocol state a session is in.
type StateFunc[E comparable] func(s *session.Session) E

// StateHolder is implemented by session attachments that track a protocol
// state.
type StateHolder[E comparable] interface {
	ProtocolState() E
}

// AttachedState reads the state from the session attachment, which may be
// an E or a StateHolder[E]. Sessions without either are in initial.
func AttachedState[E comparable](initial E) StateFunc[E] {
	return func(s *session.Session) E {
		switch a := s.Attachment().(type) {
		case E:
			return a
		case StateHolder[E]:
			return a.ProtocolState()
		}
		return initial
	}
}

type stateTable struct {
	incoming map[uint64]*packetType
	outbound map[reflect.Type]*packetType
}

// Stated is a protocol whose packet set depends on the state of the
// session, such as a handshake phase followed by a data phase. Every state
// keeps its own incoming and outbound registrations, so one id may carry
// different packets in different states.
//
// Inbound ids not registered for the current state raise ErrUnknownPacket.
// Outbound values whose type is registered for some other state fail the
// send with ErrUnknownPacket; types never registered pass through.
type Stated[E comparable] struct {
	name  string
	state StateFunc[E]

	mu     sync.RWMutex
	states map[E]*stateTable
	known  map[reflect.Type]struct{}
}

// NewStated creates an empty stated protocol. state is consulted for every
// packet.
func NewStated[E comparable](name string, state StateFunc[E]) *Stated[E] {
	return &Stated[E]{
		name:   name,
		state:  state,
		states: make(map[E]*stateTable),
		known:  make(map[reflect.Type]struct{}),
	}
}

// Name returns the protocol name.
func (p *Stated[E]) Name() string { return p.name }

// State returns the state s is in.
func (p *Stated[E]) State(s *session.Session) E { return p.state(s) }

// RegisterStated adds packet type T under id in state, for both directions.
// handle may be nil.
func RegisterStated[T any, E comparable](p *Stated[E], state E, id uint64, codec Codec[T], handle HandlerFunc[T]) error {
	if codec.Encode == nil || codec.Decode == nil {
		return fmt.Errorf("%w: packet %d needs an encoder and a decoder", ErrInvalidPacket, id)
	}
	return p.add(state, newPacketType(id, codec, handle), true, true)
}

// MustRegisterStated is like RegisterStated but panics on error.
func MustRegisterStated[T any, E comparable](p *Stated[E], state E, id uint64, codec Codec[T], handle HandlerFunc[T]) {
	if err := RegisterStated(p, state, id, codec, handle); err != nil {
		panic(err)
	}
}

// RegisterOutbound adds packet type T under id in state for sending only.
func RegisterOutbound[T any, E comparable](p *Stated[E], state E, id uint64, encode Encoder[T]) error {
	if encode == nil {
		return fmt.Errorf("%w: outbound packet %d needs an encoder", ErrInvalidPacket, id)
	}
	return p.add(state, newPacketType(id, Codec[T]{Encode: encode}, nil), false, true)
}

// RegisterIncoming adds packet type T under id in state for receiving only.
func RegisterIncoming[T any, E comparable](p *Stated[E], state E, id uint64, decode Decoder[T], handle HandlerFunc[T]) error {
	if decode == nil {
		return fmt.Errorf("%w: incoming packet %d needs a decoder", ErrInvalidPacket, id)
	}
	return p.add(state, newPacketType(id, Codec[T]{Decode: decode}, handle), true, false)
}

func (p *Stated[E]) add(state E, pt *packetType, in, out bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.states[state]
	if !ok {
		t = &stateTable{
			incoming: make(map[uint64]*packetType),
			outbound: make(map[reflect.Type]*packetType),
		}
		p.states[state] = t
	}
	if prev, ok := t.incoming[pt.id]; ok && in {
		return fmt.Errorf("%w: id %d already registered for %s in state %v", ErrDuplicatePacket, pt.id, prev.goType, state)
	}
	if prev, ok := t.outbound[pt.goType]; ok && out {
		return fmt.Errorf("%w: %s already registered as id %d in state %v", ErrDuplicatePacket, pt.goType, prev.id, state)
	}
	if in {
		t.incoming[pt.id] = pt
	}
	if out {
		t.outbound[pt.goType] = pt
		p.known[pt.goType] = struct{}{}
	}
	return nil
}

// lookupType returns the outbound registration of t in state, and whether
// t is registered for any state at all.
func (p *Stated[E]) lookupType(state E, t reflect.Type) (*packetType, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if st, ok := p.states[state]; ok {
		if pt, ok := st.outbound[t]; ok {
			return pt, true
		}
	}
	_, known := p.known[t]
	return nil, known
}

func (p *Stated[E]) lookupBody(state E, data []byte) (*packetType, []byte, error) {
	id, body, err := readID(data, p.name)
	if err != nil {
		return nil, nil, err
	}
	p.mu.RLock()
	var pt *packetType
	if st, ok := p.states[state]; ok {
		pt = st.incoming[id]
	}
	p.mu.RUnlock()
	if pt == nil {
		return nil, nil, fmt.Errorf("%w: id %d in %s state %v", ErrUnknownPacket, id, p.name, state)
	}
	return pt, body, nil
}

// Encode produces the packet body for a value registered in state.
func (p *Stated[E]) Encode(state E, packet any) ([]byte, error) {
	pt, _ := p.lookupType(state, reflect.TypeOf(packet))
	if pt == nil {
		return nil, fmt.Errorf("%w: %T not registered in %s state %v", ErrUnknownPacket, packet, p.name, state)
	}
	return encodePacket(pt, packet)
}

// Decode parses a packet body received in state.
func (p *Stated[E]) Decode(state E, data []byte) (uint64, any, error) {
	pt, body, err := p.lookupBody(state, data)
	if err != nil {
		return 0, nil, err
	}
	v, err := pt.decode(body)
	if err != nil {
		return pt.id, nil, fmt.Errorf("decode packet %d: %w", pt.id, err)
	}
	return pt.id, v, nil
}

func (p *Stated[E]) Sending(s *session.Session, msg any, ch wire.ChannelID, next pipeline.Next) {
	state := p.state(s)
	pt, known := p.lookupType(state, reflect.TypeOf(msg))
	if pt == nil {
		if !known {
			next(msg)
			return
		}
		panic(fmt.Errorf("%w: %T not registered in %s state %v", ErrUnknownPacket, msg, p.name, state))
	}
	body, err := encodePacket(pt, msg)
	if err != nil {
		panic(err)
	}
	logPacket(s, p.name, pt, ch, len(body), log.DirectionOut)
	next(body)
}

func (p *Stated[E]) MessageReceived(s *session.Session, msg any, ch wire.ChannelID, next pipeline.Next) {
	data, ok := msg.([]byte)
	if !ok {
		next(msg)
		return
	}
	pt, body, err := p.lookupBody(p.state(s), data)
	if err != nil {
		s.Pipeline().FireExceptionCaught(err)
		return
	}
	v, err := pt.decode(body)
	if err != nil {
		s.Pipeline().FireExceptionCaught(fmt.Errorf("decode packet %d: %w", pt.id, err))
		return
	}
	logPacket(s, p.name, pt, ch, len(data), log.DirectionIn)
	if pt.handle == nil {
		next(v)
		return
	}
	pt.handle(s, v, ch)
}

var _ Handler = (*Stated[int])(nil)
