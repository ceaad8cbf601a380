package framing

import (
	"fmt"

	"github.com/PorkStudios/PorkLib-sub015/pkg/log"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// DatagramFramer frames packets for transports that preserve message
// boundaries. Each Unpack call receives exactly one transport message.
type DatagramFramer struct {
	capture
	maxFrameSize uint32
}

// NewDatagramFramer creates a datagram framer. A zero maxFrameSize selects
// DefaultMaxFrameSize.
func NewDatagramFramer(maxFrameSize uint32) *DatagramFramer {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &DatagramFramer{maxFrameSize: maxFrameSize}
}

// MaxFrameSize returns the configured frame limit.
func (f *DatagramFramer) MaxFrameSize() uint32 {
	return f.maxFrameSize
}

// Pack implements Framer.
func (f *DatagramFramer) Pack(p wire.ChanneledPacket) ([]byte, error) {
	size := channelLen(p.Channel) + len(p.Payload)
	if uint64(size) > uint64(f.maxFrameSize) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, f.maxFrameSize)
	}
	buf := make([]byte, 0, size)
	buf = appendChannel(buf, p.Channel)
	buf = append(buf, p.Payload...)

	f.log(p, len(buf), log.DirectionOut)
	return buf, nil
}

// Unpack implements Framer.
func (f *DatagramFramer) Unpack(data []byte) ([]wire.ChanneledPacket, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrMalformedFrame)
	}
	if uint64(len(data)) > uint64(f.maxFrameSize) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(data), f.maxFrameSize)
	}
	ch, payload, err := readChannel(data)
	if err != nil {
		return nil, err
	}
	p := wire.ChanneledPacket{Payload: append([]byte(nil), payload...), Channel: ch}
	f.log(p, len(data), log.DirectionIn)
	return []wire.ChanneledPacket{p}, nil
}

// Compile-time interface satisfaction checks.
var (
	_ Framer   = (*DatagramFramer)(nil)
	_ Loggable = (*DatagramFramer)(nil)
)
