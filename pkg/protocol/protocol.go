package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/PorkStudios/PorkLib-sub015/pkg/log"
	"github.com/PorkStudios/PorkLib-sub015/pkg/pipeline"
	"github.com/PorkStudios/PorkLib-sub015/pkg/session"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// Protocol errors.
var (
	// ErrDuplicatePacket is returned when a packet id or Go type is
	// registered twice in one protocol.
	ErrDuplicatePacket = errors.New("duplicate packet")

	// ErrUnknownPacket is raised when an inbound packet id is not registered.
	ErrUnknownPacket = errors.New("unknown packet")

	// ErrMalformedPacket is raised when an inbound body has no valid id.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrInvalidPacket is returned when a registration is incomplete.
	ErrInvalidPacket = errors.New("invalid packet registration")
)

// HandlerFunc handles one decoded packet.
type HandlerFunc[T any] func(s *session.Session, packet T, ch wire.ChannelID)

// Handler is the pipeline capability set a protocol or router provides.
type Handler interface {
	pipeline.SendingHandler[*session.Session]
	pipeline.ReceivedHandler[*session.Session]
}

type packetType struct {
	id     uint64
	goType reflect.Type
	encode func(any) ([]byte, error)
	decode func([]byte) (any, error)
	handle func(*session.Session, any, wire.ChannelID)
}

// Protocol is a packet registry. Registration normally happens before the
// protocol is used, but Protocol is safe for concurrent use.
type Protocol struct {
	name string

	mu     sync.RWMutex
	byID   map[uint64]*packetType
	byType map[reflect.Type]*packetType
}

// New creates an empty protocol.
func New(name string) *Protocol {
	return &Protocol{
		name:   name,
		byID:   make(map[uint64]*packetType),
		byType: make(map[reflect.Type]*packetType),
	}
}

// Name returns the protocol name.
func (p *Protocol) Name() string { return p.name }

// Register adds packet type T under id. handle may be nil for packets that
// are only ever sent.
func Register[T any](p *Protocol, id uint64, codec Codec[T], handle HandlerFunc[T]) error {
	if codec.Encode == nil || codec.Decode == nil {
		return fmt.Errorf("%w: packet %d needs an encoder and a decoder", ErrInvalidPacket, id)
	}
	pt := newPacketType(id, codec, handle)
	goType := pt.goType

	p.mu.Lock()
	defer p.mu.Unlock()
	if prev, ok := p.byID[id]; ok {
		return fmt.Errorf("%w: id %d already registered for %s", ErrDuplicatePacket, id, prev.goType)
	}
	if prev, ok := p.byType[goType]; ok {
		return fmt.Errorf("%w: %s already registered as id %d", ErrDuplicatePacket, goType, prev.id)
	}
	p.byID[id] = pt
	p.byType[goType] = pt
	return nil
}

func newPacketType[T any](id uint64, codec Codec[T], handle HandlerFunc[T]) *packetType {
	pt := &packetType{id: id, goType: reflect.TypeFor[T]()}
	if codec.Encode != nil {
		pt.encode = func(v any) ([]byte, error) { return codec.Encode(v.(T)) }
	}
	if codec.Decode != nil {
		pt.decode = func(data []byte) (any, error) { return codec.Decode(data) }
	}
	if handle != nil {
		pt.handle = func(s *session.Session, v any, ch wire.ChannelID) { handle(s, v.(T), ch) }
	}
	return pt
}

// MustRegister is like Register but panics on error.
func MustRegister[T any](p *Protocol, id uint64, codec Codec[T], handle HandlerFunc[T]) {
	if err := Register(p, id, codec, handle); err != nil {
		panic(err)
	}
}

// IDs returns the registered packet ids.
func (p *Protocol) IDs() []uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]uint64, 0, len(p.byID))
	for id := range p.byID {
		ids = append(ids, id)
	}
	return ids
}

// Encode produces the packet body for a registered value.
func (p *Protocol) Encode(packet any) ([]byte, error) {
	pt, ok := p.lookupType(reflect.TypeOf(packet))
	if !ok {
		return nil, fmt.Errorf("%w: %T not registered in %s", ErrUnknownPacket, packet, p.name)
	}
	return encodePacket(pt, packet)
}

func encodePacket(pt *packetType, packet any) ([]byte, error) {
	body, err := pt.encode(packet)
	if err != nil {
		return nil, fmt.Errorf("encode packet %d: %w", pt.id, err)
	}
	out := make([]byte, 0, binary.MaxVarintLen64+len(body))
	out = binary.AppendUvarint(out, pt.id)
	return append(out, body...), nil
}

// Decode parses a packet body and returns its id and value.
func (p *Protocol) Decode(data []byte) (uint64, any, error) {
	pt, body, err := p.lookupBody(data)
	if err != nil {
		return 0, nil, err
	}
	v, err := pt.decode(body)
	if err != nil {
		return pt.id, nil, fmt.Errorf("decode packet %d: %w", pt.id, err)
	}
	return pt.id, v, nil
}

func readID(data []byte, name string) (uint64, []byte, error) {
	id, n := binary.Uvarint(data)
	if n <= 0 {
		return 0, nil, fmt.Errorf("%w: bad packet id in %s", ErrMalformedPacket, name)
	}
	return id, data[n:], nil
}

func (p *Protocol) lookupBody(data []byte) (*packetType, []byte, error) {
	id, body, err := readID(data, p.name)
	if err != nil {
		return nil, nil, err
	}
	p.mu.RLock()
	pt, ok := p.byID[id]
	p.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: id %d in %s", ErrUnknownPacket, id, p.name)
	}
	return pt, body, nil
}

func (p *Protocol) lookupType(t reflect.Type) (*packetType, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pt, ok := p.byType[t]
	return pt, ok
}

// Sending encodes registered values. Anything else continues unchanged, so
// raw bytes written by the application pass through.
func (p *Protocol) Sending(s *session.Session, msg any, ch wire.ChannelID, next pipeline.Next) {
	pt, ok := p.lookupType(reflect.TypeOf(msg))
	if !ok {
		next(msg)
		return
	}
	body, err := encodePacket(pt, msg)
	if err != nil {
		panic(err)
	}
	logPacket(s, p.name, pt, ch, len(body), log.DirectionOut)
	next(body)
}

// MessageReceived decodes an inbound body and hands it to the registered
// handler. Packets without a handler continue down the pipeline decoded.
func (p *Protocol) MessageReceived(s *session.Session, msg any, ch wire.ChannelID, next pipeline.Next) {
	data, ok := msg.([]byte)
	if !ok {
		next(msg)
		return
	}
	pt, body, err := p.lookupBody(data)
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

func logPacket(s *session.Session, name string, pt *packetType, ch wire.ChannelID, size int, dir log.Direction) {
	plog := s.ProtocolLogger()
	if plog == nil {
		return
	}
	ev := log.Event{
		Timestamp: time.Now(),
		SessionID: s.ID(),
		Direction: dir,
		Layer:     log.LayerProtocol,
		Category:  log.CategoryMessage,
		Transport: s.Transport(),
		Channel:   log.ChannelRef(ch),
		Packet: &log.PacketEvent{
			Protocol: name,
			PacketID: pt.id,
			Type:     pt.goType.String(),
			Size:     size,
		},
	}
	if addr := s.RemoteAddr(); addr != nil {
		ev.RemoteAddr = addr.String()
	}
	plog.Log(ev)
}

var _ Handler = (*Protocol)(nil)
