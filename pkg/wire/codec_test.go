package wire

import (
	"bytes"
	"testing"
)

func TestControlMessageRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  ControlMessage
	}{
		{
			name: "channel open",
			msg:  ControlMessage{Type: ControlChannelOpen, Channel: 7, Reliability: Reliable},
		},
		{
			name: "channel open unreliable",
			msg:  ControlMessage{Type: ControlChannelOpen, Channel: 3, Reliability: Unreliable},
		},
		{
			name: "channel open reject",
			msg:  ControlMessage{Type: ControlChannelOpenReject, Channel: 7, Reason: "in use"},
		},
		{
			name: "channel close ack",
			msg:  ControlMessage{Type: ControlChannelCloseAck, Channel: 9},
		},
		{
			name: "ping",
			msg:  ControlMessage{Type: ControlPing, Sequence: 1},
		},
		{
			name: "pong",
			msg:  ControlMessage{Type: ControlPong, Sequence: 1},
		},
		{
			name: "close",
			msg:  ControlMessage{Type: ControlClose, Reason: "shutdown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeControlMessage(&tt.msg)
			if err != nil {
				t.Fatalf("EncodeControlMessage failed: %v", err)
			}

			decoded, err := DecodeControlMessage(data)
			if err != nil {
				t.Fatalf("DecodeControlMessage failed: %v", err)
			}

			if *decoded != tt.msg {
				t.Errorf("decoded = %+v, want %+v", *decoded, tt.msg)
			}
		})
	}
}

func TestControlMessageDeterministic(t *testing.T) {
	msg := ControlMessage{Type: ControlChannelOpen, Channel: 42, Reliability: ReliableOrdered}

	a, err := EncodeControlMessage(&msg)
	if err != nil {
		t.Fatalf("EncodeControlMessage failed: %v", err)
	}
	b, err := EncodeControlMessage(&msg)
	if err != nil {
		t.Fatalf("EncodeControlMessage failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("encodings differ: %x vs %x", a, b)
	}
}

func TestControlMessageValidation(t *testing.T) {
	tests := []struct {
		name    string
		msg     ControlMessage
		wantErr bool
	}{
		{"valid open", ControlMessage{Type: ControlChannelOpen, Channel: 1, Reliability: Reliable}, false},
		{"valid ping", ControlMessage{Type: ControlPing, Sequence: 5}, false},
		{"zero type", ControlMessage{}, true},
		{"unknown type", ControlMessage{Type: 99}, true},
		{"open default channel", ControlMessage{Type: ControlChannelOpen, Channel: DefaultChannel}, true},
		{"close control channel", ControlMessage{Type: ControlChannelClose, Channel: ControlChannel}, true},
		{"open invalid reliability", ControlMessage{Type: ControlChannelOpen, Channel: 2, Reliability: 17}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeControlMessageGarbage(t *testing.T) {
	if _, err := DecodeControlMessage([]byte{0xff, 0x00, 0x13}); err == nil {
		t.Error("expected error decoding garbage")
	}
}
