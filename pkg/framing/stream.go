package framing

import (
	"encoding/binary"
	"fmt"

	"github.com/PorkStudios/PorkLib-sub015/pkg/log"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// StreamFramer frames packets on a byte stream with a 4-byte length prefix.
// Unpack must be called from one goroutine at a time.
type StreamFramer struct {
	capture
	maxFrameSize uint32
	residue      []byte
}

// NewStreamFramer creates a stream framer. A zero maxFrameSize selects
// DefaultMaxFrameSize.
func NewStreamFramer(maxFrameSize uint32) *StreamFramer {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &StreamFramer{maxFrameSize: maxFrameSize}
}

// MaxFrameSize returns the configured frame limit.
func (f *StreamFramer) MaxFrameSize() uint32 {
	return f.maxFrameSize
}

// Buffered returns the number of residue bytes waiting for more input.
func (f *StreamFramer) Buffered() int {
	return len(f.residue)
}

// Pack implements Framer.
func (f *StreamFramer) Pack(p wire.ChanneledPacket) ([]byte, error) {
	size := channelLen(p.Channel) + len(p.Payload)
	if uint64(size) > uint64(f.maxFrameSize) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, f.maxFrameSize)
	}

	buf := make([]byte, LengthPrefixSize, LengthPrefixSize+size)
	binary.BigEndian.PutUint32(buf, uint32(size))
	buf = appendChannel(buf, p.Channel)
	buf = append(buf, p.Payload...)

	f.log(p, len(buf), log.DirectionOut)
	return buf, nil
}

// Unpack implements Framer. After an error the residue is discarded; the
// stream cannot be resynchronised.
func (f *StreamFramer) Unpack(data []byte) ([]wire.ChanneledPacket, error) {
	f.residue = append(f.residue, data...)

	var packets []wire.ChanneledPacket
	buf := f.residue
	for len(buf) >= LengthPrefixSize {
		length := binary.BigEndian.Uint32(buf)
		if length == 0 {
			f.residue = nil
			return packets, fmt.Errorf("%w: zero length", ErrMalformedFrame)
		}
		if length > f.maxFrameSize {
			f.residue = nil
			return packets, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, f.maxFrameSize)
		}
		total := LengthPrefixSize + int(length)
		if len(buf) < total {
			break
		}

		ch, payload, err := readChannel(buf[LengthPrefixSize:total])
		if err != nil {
			f.residue = nil
			return packets, err
		}
		p := wire.ChanneledPacket{
			Payload: append([]byte(nil), payload...),
			Channel: ch,
		}
		f.log(p, total, log.DirectionIn)
		packets = append(packets, p)
		buf = buf[total:]
	}

	// Keep the residue at the front of the buffer.
	f.residue = append(f.residue[:0], buf...)
	return packets, nil
}

// Compile-time interface satisfaction checks.
var (
	_ Framer   = (*StreamFramer)(nil)
	_ Loggable = (*StreamFramer)(nil)
)
