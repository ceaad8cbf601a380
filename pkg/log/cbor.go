package log

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// capture encodes timestamps with nanosecond precision so events from one
// session keep their order when merged with other captures.
var capture = wire.MustCodec(cbor.TimeRFC3339Nano)

// EncodeEvent encodes an Event to CBOR.
func EncodeEvent(event Event) ([]byte, error) {
	return capture.Marshal(event)
}

// DecodeEvent decodes one CBOR-encoded Event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := capture.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}
