package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/PorkStudios/PorkLib-sub015/pkg/log"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// Framing constants.
const (
	// LengthPrefixSize is the size of the stream length prefix in bytes.
	LengthPrefixSize = 4

	// DefaultMaxFrameSize is the default limit on channel id plus payload (1 MiB).
	DefaultMaxFrameSize = 1 << 20

	// MaxLogFrameDataSize is the maximum frame data size included in capture
	// events. Larger frames are truncated.
	MaxLogFrameDataSize = 4096
)

// Framing errors.
var (
	// ErrFrameTooLarge indicates a frame exceeds the configured maximum.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrMalformedFrame indicates bytes that cannot be a valid frame.
	ErrMalformedFrame = errors.New("malformed frame")
)

// Framer slices transport bytes into packets and back.
type Framer interface {
	// Unpack consumes data and returns the packets it completes.
	Unpack(data []byte) ([]wire.ChanneledPacket, error)

	// Pack encodes one packet for the transport.
	Pack(p wire.ChanneledPacket) ([]byte, error)
}

// Loggable is implemented by framers that can emit capture events.
type Loggable interface {
	SetLogger(logger log.Logger, sessionID string)
}

// capture holds optional protocol logging shared by the framers.
type capture struct {
	logger    log.Logger
	sessionID string
}

func (c *capture) SetLogger(logger log.Logger, sessionID string) {
	c.logger = logger
	c.sessionID = sessionID
}

func (c *capture) log(p wire.ChanneledPacket, size int, direction log.Direction) {
	if c.logger == nil {
		return
	}
	data := p.Payload
	truncated := false
	if len(data) > MaxLogFrameDataSize {
		data = data[:MaxLogFrameDataSize]
		truncated = true
	}
	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: c.sessionID,
		Direction: direction,
		Layer:     log.LayerTransport,
		Category:  log.CategoryMessage,
		Channel:   log.ChannelRef(p.Channel),
		Frame: &log.FrameEvent{
			Size:      size,
			Data:      data,
			Truncated: truncated,
		},
	})
}

// appendChannel appends the uvarint channel id.
func appendChannel(dst []byte, ch wire.ChannelID) []byte {
	return binary.AppendUvarint(dst, uint64(ch))
}

// readChannel decodes the uvarint channel id at the start of frame.
func readChannel(frame []byte) (wire.ChannelID, []byte, error) {
	v, n := binary.Uvarint(frame)
	if n <= 0 {
		return 0, nil, fmt.Errorf("%w: bad channel id", ErrMalformedFrame)
	}
	if v > math.MaxUint32 {
		return 0, nil, fmt.Errorf("%w: channel id %d out of range", ErrMalformedFrame, v)
	}
	return wire.ChannelID(v), frame[n:], nil
}

func channelLen(ch wire.ChannelID) int {
	var buf [binary.MaxVarintLen64]byte
	return binary.PutUvarint(buf[:], uint64(ch))
}
