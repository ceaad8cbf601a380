package wire

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Codec is a pair of CBOR modes. Encoding is deterministic: canonical key
// order, definite lengths, nil containers as null. Decoding tolerates
// duplicate keys and unknown fields so newer peers can add fields.
type Codec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCodec builds a codec encoding time.Time values with tm.
func NewCodec(tm cbor.TimeMode) (*Codec, error) {
	enc, err := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          tm,
	}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encoder mode: %w", err)
	}
	dec, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor decoder mode: %w", err)
	}
	return &Codec{enc: enc, dec: dec}, nil
}

// MustCodec is NewCodec for package-level codecs.
func MustCodec(tm cbor.TimeMode) *Codec {
	c, err := NewCodec(tm)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Codec) Marshal(v any) ([]byte, error)         { return c.enc.Marshal(v) }
func (c *Codec) Unmarshal(data []byte, v any) error    { return c.dec.Unmarshal(data, v) }
func (c *Codec) NewEncoder(w io.Writer) *cbor.Encoder { return c.enc.NewEncoder(w) }
func (c *Codec) NewDecoder(r io.Reader) *cbor.Decoder { return c.dec.NewDecoder(r) }

// std carries control messages and CBOR packet bodies.
var std = MustCodec(cbor.TimeUnix)

// Marshal encodes v with the standard codec.
func Marshal(v any) ([]byte, error) {
	return std.Marshal(v)
}

// Unmarshal decodes data into v with the standard codec.
func Unmarshal(data []byte, v any) error {
	return std.Unmarshal(data, v)
}

// EncodeControlMessage validates and encodes msg.
func EncodeControlMessage(msg *ControlMessage) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid control message: %w", err)
	}
	return std.Marshal(msg)
}

// DecodeControlMessage decodes and validates a control message.
func DecodeControlMessage(data []byte) (*ControlMessage, error) {
	var msg ControlMessage
	if err := std.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode control message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid control message: %w", err)
	}
	return &msg, nil
}
