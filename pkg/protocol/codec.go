package protocol

import (
	"fmt"

	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// Encoder turns a packet into bytes.
type Encoder[T any] func(packet T) ([]byte, error)

// Decoder turns bytes back into a packet.
type Decoder[T any] func(data []byte) (T, error)

// Codec pairs an Encoder with its Decoder.
type Codec[T any] struct {
	Encode Encoder[T]
	Decode Decoder[T]
}

// CBOR returns a codec using deterministic CBOR. Struct fields should
// carry `cbor:"N,keyasint"` tags for compact encoding.
func CBOR[T any]() Codec[T] {
	return Codec[T]{
		Encode: func(packet T) ([]byte, error) {
			return wire.Marshal(packet)
		},
		Decode: func(data []byte) (T, error) {
			var packet T
			if err := wire.Unmarshal(data, &packet); err != nil {
				return packet, fmt.Errorf("decode %T: %w", packet, err)
			}
			return packet, nil
		},
	}
}

// Bytes returns a codec that passes byte slices through. The decoded slice
// is a copy and may be retained.
func Bytes() Codec[[]byte] {
	return Codec[[]byte]{
		Encode: func(packet []byte) ([]byte, error) { return packet, nil },
		Decode: func(data []byte) ([]byte, error) {
			return append([]byte(nil), data...), nil
		},
	}
}

// String returns a codec for UTF-8 text.
func String() Codec[string] {
	return Codec[string]{
		Encode: func(packet string) ([]byte, error) { return []byte(packet), nil },
		Decode: func(data []byte) (string, error) { return string(data), nil },
	}
}
